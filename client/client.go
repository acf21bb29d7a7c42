package client

import (
	"net/http"

	x402 "github.com/paidroute/x402"
	"github.com/paidroute/x402/signer"
)

// Client is an http.Client whose transport pays x402 challenges. Paid
// endpoints look like free ones: Get, Post and Do behave as usual, and the
// settlement for the most recent paid call is available afterwards.
type Client struct {
	*http.Client
	transport *Transport
}

// New builds a paying client around the wallet.
func New(s *signer.Signer, opts ...TransportOption) *Client {
	transport := NewTransport(s, opts...)
	return &Client{
		Client:    &http.Client{Transport: transport},
		transport: transport,
	}
}

// LastSettlement returns the most recent settlement, or nil if no paid
// call has completed yet.
func (c *Client) LastSettlement() *x402.PaymentInfo {
	return c.transport.LastSettlement()
}
