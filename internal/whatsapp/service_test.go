package whatsapp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type fakeProvider struct {
	textErr       error
	textResult    SendResult
	templateCalls int
	lastTemplate  string
	lastArgs      []string
}

func (f *fakeProvider) SendText(_ context.Context, to, body string) (SendResult, error) {
	if f.textErr != nil {
		return SendResult{Error: f.textErr.Error()}, f.textErr
	}
	return f.textResult, nil
}

func (f *fakeProvider) SendTemplate(_ context.Context, to, templateSID string, args []string) (SendResult, error) {
	f.templateCalls++
	f.lastTemplate = templateSID
	f.lastArgs = args
	return SendResult{Success: true, Status: StatusQueued, MessageID: "SM123"}, nil
}

func TestSendResponse_FreeformFirst(t *testing.T) {
	p := &fakeProvider{textResult: SendResult{Success: true, Status: StatusSent}}
	s := NewService(p, "HX_fallback", zap.NewNop())

	res, err := s.SendResponse(context.Background(), "+972501234567", "hello")
	if err != nil || !res.Success {
		t.Fatalf("send: %v %+v", err, res)
	}
	if p.templateCalls != 0 {
		t.Fatal("template must not be used when freeform succeeds")
	}
}

func TestSendResponse_TemplateFallbackOnWindowError(t *testing.T) {
	p := &fakeProvider{textErr: errors.New("Twilio error 63016: outside window")}
	s := NewService(p, "HX_fallback", zap.NewNop())

	res, err := s.SendResponse(context.Background(), "+972501234567", "hello")
	if err != nil || !res.Success {
		t.Fatalf("fallback send: %v %+v", err, res)
	}
	if p.templateCalls != 1 || p.lastTemplate != "HX_fallback" {
		t.Fatalf("expected one fallback template send, got %d (%s)", p.templateCalls, p.lastTemplate)
	}
	if len(p.lastArgs) != 1 || p.lastArgs[0] != "hello" {
		t.Fatalf("template args = %v", p.lastArgs)
	}
}

func TestSendResponse_NoFallbackOnOtherErrors(t *testing.T) {
	p := &fakeProvider{textErr: errors.New("invalid destination number")}
	s := NewService(p, "HX_fallback", zap.NewNop())

	if _, err := s.SendResponse(context.Background(), "+972501234567", "hello"); err == nil {
		t.Fatal("non-window errors must propagate")
	}
	if p.templateCalls != 0 {
		t.Fatal("fallback must only fire on session-window errors")
	}
}

func TestBuildMenu(t *testing.T) {
	got := BuildMenu("What would you like to do?", []string{"Tefillin Reminder", "Custom Reminder"})
	for _, want := range []string{"What would you like to do?", "1️⃣ Tefillin Reminder", "2️⃣ Custom Reminder", "Reply with the number."} {
		if !strings.Contains(got, want) {
			t.Errorf("menu missing %q:\n%s", want, got)
		}
	}
}
