package web

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// handleTimeout bounds the asynchronous processing of one inbound
// message after the webhook has already been acknowledged.
const handleTimeout = 30 * time.Second

type webhookHandler struct {
	bot       Bot
	validator SignatureValidator
	baseURL   string
	log       *zap.Logger
}

// verify answers the subscription handshake: echo the challenge back.
func (h *webhookHandler) verify(w http.ResponseWriter, r *http.Request) {
	if challenge := r.URL.Query().Get("hub.challenge"); challenge != "" {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("webhook up"))
}

// receive acknowledges the webhook immediately and processes the
// message in the background. Twilio retries slow webhooks, so the
// conversation work must never sit between request and response.
func (h *webhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.log.Warn("unparseable webhook form", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !h.signatureOK(r) {
		h.log.Warn("webhook signature rejected", zap.String("remote", r.RemoteAddr))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	if from == "" {
		h.log.Warn("webhook without From, ignoring")
		w.WriteHeader(http.StatusOK)
		return
	}

	h.log.Debug("inbound message",
		zap.String("from", from),
		zap.String("sid", r.PostForm.Get("MessageSid")),
	)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		h.bot.HandleInbound(ctx, from, body)
	}()

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("<Response></Response>"))
}

// signatureOK validates X-Twilio-Signature when a validator and public
// base URL are configured; otherwise validation is disabled.
func (h *webhookHandler) signatureOK(r *http.Request) bool {
	if h.validator == nil || h.baseURL == "" {
		return true
	}
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	return h.validator.ValidateSignature(
		h.baseURL+r.URL.RequestURI(),
		params,
		r.Header.Get("X-Twilio-Signature"),
	)
}
