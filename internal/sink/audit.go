package sink

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential"
	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
)

type auditStore interface {
	Save(ctx context.Context, rows []entity.AuditRow) error
}

type idSource interface {
	Next() int64
}

// AuditSink records names and fingerprints of a bundle. It never stores values.
type AuditSink struct {
	store auditStore
	ids   idSource
}

func NewAuditSink(store auditStore, ids idSource) *AuditSink {
	return &AuditSink{store: store, ids: ids}
}

func (a *AuditSink) Name() string { return "audit" }

func (a *AuditSink) Store(ctx context.Context, b *entity.Bundle) error {
	rows := make([]entity.AuditRow, 0, len(b.Entries))
	for _, e := range b.Entries {
		rows = append(rows, entity.AuditRow{
			ID:          a.ids.Next(),
			BundleID:    b.ID,
			Name:        e.Name,
			Fingerprint: credential.Fingerprint(e.Value),
			Length:      len(e.Value),
			GeneratedAt: b.GeneratedAt,
		})
	}
	return a.store.Save(ctx, rows)
}
