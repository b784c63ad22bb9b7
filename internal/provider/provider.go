package provider

import (
	"context"

	"github.com/kursadbilgin/outreach-engine/internal/render"
)

// Sender delivers a rendered message to its recipient.
type Sender interface {
	Send(ctx context.Context, msg *render.Message) error
	Name() string
}

// Archiver stores a copy of a delivered message.
type Archiver interface {
	Archive(ctx context.Context, msg *render.Message) error
	Name() string
}

// NopArchiver is used when archival is disabled.
type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, *render.Message) error { return nil }

func (NopArchiver) Name() string { return "none" }
