package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/mode"
	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/pain"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/render"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/research"
)

// Generate writes a report or landing page for the user's draft, attaches it
// and charges once. No chat messages are stored.
func (r *Runner) Generate(ctx context.Context, userID, painID string, doc pain.Document) (*pain.Draft, error) {
	ctx, span := tracer.Start(ctx, "agent.generate", trace.WithAttributes(
		hsotel.UserID.String(userID),
		hsotel.Mode.String(string(doc)),
	))
	defer span.End()

	var m mode.Mode
	switch doc {
	case pain.DocumentReport:
		m = mode.PdfGeneration{PainID: painID}
	case pain.DocumentLanding:
		m = mode.LandingGeneration{PainID: painID}
	default:
		return nil, fmt.Errorf("%w: document %q", mode.ErrUnknownMode, doc)
	}

	d, err := r.cfg.Drafts.GetOwned(ctx, userID, painID)
	if err != nil {
		return nil, err
	}

	ctx, p, err := r.prepare(ctx, Command{Mode: m, UserID: userID, ChatID: d.ChatID})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	res, err := p.loop.Run(ctx, p.state, p.registry)
	if err != nil {
		recordIterations(ctx, 0, string(m.Name()), true)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, err
	}
	recordIterations(ctx, res.Iterations, string(m.Name()), false)

	title := d.Segment
	if title == "" {
		title = "Untitled"
	}
	html := render.Document(research.StripCodeFence(res.FinalText), title)
	updated, err := r.cfg.Drafts.AttachDocument(ctx, painID, doc, html)
	if err != nil {
		return nil, fmt.Errorf("attaching %s: %w", doc, err)
	}
	r.charge(ctx, p)

	log.Info().Func(p.logFields).Str("pain_id", painID).Int("bytes", len(html)).Msg("document_generated")
	return updated, nil
}
