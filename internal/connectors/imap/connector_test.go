package imap

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-imap"

	"stockcount/internal/config"
)

func TestFormatAddresses(t *testing.T) {
	got := formatAddresses([]*imap.Address{
		{PersonalName: "Fornecedor", MailboxName: "vendas", HostName: "fornecedor.com.br"},
		nil,
		{MailboxName: "estoque", HostName: "loja.com.br"},
	})
	want := "Fornecedor <vendas@fornecedor.com.br>, estoque@loja.com.br"
	if got != want {
		t.Fatalf("formatAddresses = %q, want %q", got, want)
	}
	if formatAddresses(nil) != "" {
		t.Fatalf("expected empty string for no addresses")
	}
}

func TestNewConnectorRequiresCredentials(t *testing.T) {
	if _, err := NewConnector(config.Config{IMAPHost: "imap.example.com"}); err == nil {
		t.Fatalf("expected error without IMAP_USER")
	}
	c, err := NewConnector(config.Config{IMAPHost: "imap.example.com", IMAPPort: 993, IMAPUser: "u", IMAPPassword: "p", IMAPSecure: true})
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	if c.addr != "imap.example.com:993" || !c.secure {
		t.Fatalf("unexpected connector %+v", c)
	}
}

func TestToFetched(t *testing.T) {
	section := &imap.BodySectionName{}
	msg := imap.NewMessage(7, nil)
	msg.Uid = 42
	msg.InternalDate = time.Date(2026, 3, 9, 13, 0, 0, 0, time.UTC)
	msg.Body = map[*imap.BodySectionName]imap.Literal{section: bytes.NewBufferString("Subject: x\r\n\r\nbody")}

	got, ok, err := toFetched(msg, section)
	if err != nil || !ok {
		t.Fatalf("toFetched ok=%v err=%v", ok, err)
	}
	if got.MessageID != "imap-42" {
		t.Fatalf("message id = %q", got.MessageID)
	}
	if got.ReceivedAt != "2026-03-09T13:00:00Z" {
		t.Fatalf("received = %q", got.ReceivedAt)
	}

	msg.Envelope = &imap.Envelope{MessageId: "<m1@loja>", Subject: "Tabela"}
	msg.Body = map[*imap.BodySectionName]imap.Literal{section: bytes.NewBufferString("body")}
	got, _, _ = toFetched(msg, section)
	if got.MessageID != "<m1@loja>" || got.Subject != "Tabela" {
		t.Fatalf("unexpected %+v", got)
	}

	if _, ok, _ := toFetched(imap.NewMessage(8, nil), section); ok {
		t.Fatalf("expected no body")
	}
}
