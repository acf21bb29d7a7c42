package gate

import (
	"net/http"

	"github.com/labstack/echo/v4"

	x402 "github.com/paidroute/x402"
)

// Echo adapts the gate to echo middleware.
func (g *Gate) Echo() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(x402.PaymentHeader)
			if header == "" {
				g.rec.IncCounter("challenge", map[string]string{"network": g.method.Network})
				return c.JSON(http.StatusPaymentRequired, g.challengeBody())
			}

			receipt, err := g.handlePayment(c.Request().Context(), header)
			if err != nil {
				status, body := g.failureResponse(err)
				return c.JSON(status, body)
			}

			res := c.Response()
			original := res.Writer
			captured := newBufferingWriter(original)
			res.Writer = captured

			handlerErr := next(c)

			res.Writer = original
			if handlerErr != nil {
				// The payment already settled; keep the settlement header on
				// whatever the error handler renders.
				if encoded, encErr := x402.EncodeSettlementHeader(receipt); encErr == nil {
					original.Header().Set(x402.PaymentResponseHeader, encoded)
				}
				return handlerErr
			}

			g.flush(original, captured.statusCode, captured.body.Bytes(), receipt)
			return nil
		}
	}
}
