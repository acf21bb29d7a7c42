package gate

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/paidroute/x402"
)

// Gin adapts the gate to a gin handler chain. The protected handlers run
// only after the payment has settled; their output is captured so the
// settlement record can be merged into JSON bodies.
func (g *Gate) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(x402.PaymentHeader)
		if header == "" {
			g.rec.IncCounter("challenge", map[string]string{"network": g.method.Network})
			c.AbortWithStatusJSON(http.StatusPaymentRequired, g.challengeBody())
			return
		}

		receipt, err := g.handlePayment(c.Request.Context(), header)
		if err != nil {
			status, body := g.failureResponse(err)
			c.AbortWithStatusJSON(status, body)
			return
		}

		writer := &ginBodyWriter{ResponseWriter: c.Writer, statusCode: http.StatusOK}
		c.Writer = writer

		c.Next()

		c.Writer = writer.ResponseWriter
		g.flush(c.Writer, writer.statusCode, writer.body.Bytes(), receipt)
	}
}

// ginBodyWriter buffers everything the downstream handlers write. Gin
// handlers reach the writer through Write, WriteString and WriteHeader;
// all three are intercepted.
type ginBodyWriter struct {
	gin.ResponseWriter
	body       bytes.Buffer
	statusCode int
	wrote      bool
}

func (w *ginBodyWriter) WriteHeader(code int) {
	if !w.wrote {
		w.statusCode = code
		w.wrote = true
	}
}

func (w *ginBodyWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *ginBodyWriter) WriteString(s string) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.WriteString(s)
}
