package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"adbarter/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const signatureHeader = "X-Webhook-Signature"

type paymentEvent struct {
	Event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Code     string `json:"code"`
			Metadata struct {
				UserID  string `json:"user_id"`
				Credits int64  `json:"credits"`
			} `json:"metadata"`
		} `json:"data"`
	} `json:"event"`
}

// PaymentWebhook credits an account when the payment provider confirms a
// charge. The body is authenticated with an HMAC over the raw bytes, so the
// signature must be checked before any parsing.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.Error(errutil.BadRequest("unreadable body", err))
		return
	}

	if !h.validSignature(body, c.GetHeader(signatureHeader)) {
		c.Error(errutil.Unauthorized("invalid webhook signature", nil))
		return
	}

	var evt paymentEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		c.Error(errutil.BadRequest("invalid webhook payload", err))
		return
	}

	if evt.Event.Type != "charge:confirmed" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	meta := evt.Event.Data.Metadata
	if meta.UserID == "" || meta.Credits <= 0 {
		c.Error(errutil.UnprocessableEntity("charge has no credit grant", nil))
		return
	}

	if err := h.accounts.AddCredits(c.Request.Context(), meta.UserID, meta.Credits, evt.Event.Data.Code); err != nil {
		c.Error(err)
		return
	}

	zap.L().Info("payment credited",
		zap.String("user_id", meta.UserID),
		zap.Int64("credits", meta.Credits),
		zap.String("charge_code", evt.Event.Data.Code),
	)

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.cfg.Webhook.PaymentSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
