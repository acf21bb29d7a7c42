// Package x402 implements the x402 micropayment protocol: HTTP 402
// challenges, ERC-3009 transfer authorizations carried in the X-PAYMENT
// header, and the settlement records returned to paying clients.
//
// The root package holds the protocol data model and wire codecs. The
// server-side gate lives in package gate, the verification backends in
// package validator, the client-side signer in package signer, and the
// paying HTTP client in package client.
package x402
