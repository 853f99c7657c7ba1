package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/chat"
	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
)

// Stream is the consumer side of a streaming run. It has a single consumer:
// Recv must not be called concurrently. Close may be called at any time and
// from any goroutine; it cancels the run and waits for finalization.
type Stream struct {
	MessageID     string
	CorrelationID string

	ch     chan string
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// Recv returns the next chunk. After the last chunk it returns io.EOF, or
// the error that ended the run. Recv only returns after finalization when
// it reports the end of the stream.
func (s *Stream) Recv() (string, error) {
	chunk, ok := <-s.ch
	if ok {
		return chunk, nil
	}
	<-s.done
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

// Close stops the run. Chunks not yet delivered are dropped; the text
// delivered so far is persisted and the run is charged once.
func (s *Stream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Err returns the error that ended the run, if any, once the stream is done.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Done is closed once the run has been finalized.
func (s *Stream) Done() <-chan struct{} { return s.done }

// RunStream prepares cmd synchronously and then runs it in the background,
// delivering the terminal answer as chunks. Preparation failures are
// returned directly and are not charged. Once RunStream returns a Stream,
// finalization runs exactly once whether the run completes, fails or is
// cancelled by the consumer.
func (r *Runner) RunStream(ctx context.Context, cmd Command) (*Stream, error) {
	ctx, p, err := r.prepare(ctx, cmd)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		MessageID:     p.messageID,
		CorrelationID: p.correlationID,
		ch:            make(chan string),
		done:          make(chan struct{}),
		cancel:        cancel,
	}
	go r.produce(runCtx, p, s)
	return s, nil
}

// produce drives the loop and hands chunks to the consumer. Only chunks the
// consumer actually received are part of the persisted text.
func (r *Runner) produce(ctx context.Context, p *prepared, s *Stream) {
	ctx, span := tracer.Start(ctx, "agent.run_stream", trace.WithAttributes(
		hsotel.RunAttributes(p.correlationID, p.cmd.UserID, p.cmd.ChatID, string(p.cmd.Mode.Name()))...,
	))
	defer span.End()
	log.Info().Func(hsotel.LogTraceFields(ctx)).Func(p.logFields).Msg("agent_run_started")

	var (
		delivered strings.Builder
		once      sync.Once
		runErr    error
		iters     int
	)
	finalize := func() {
		once.Do(func() {
			r.finalizeStream(ctx, p, delivered.String(), runErr)
			recordIterations(ctx, iters, string(p.cmd.Mode.Name()), runErr != nil && !errors.Is(runErr, context.Canceled))
		})
	}
	defer func() {
		if v := recover(); v != nil {
			runErr = fmt.Errorf("agent run panicked: %v", v)
			log.Error().Func(p.logFields).Interface("panic", v).Msg("agent_run_panic")
		}
		finalize()
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			span.RecordError(runErr)
			span.SetStatus(codes.Error, "stream failed")
			s.err = runErr
		}
		close(s.ch)
		close(s.done)
		s.cancel()
	}()

	emit := func(chunk string) error {
		if chunk == "" {
			return nil
		}
		select {
		case s.ch <- chunk:
			delivered.WriteString(chunk)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	res, err := p.loop.RunStreaming(ctx, p.state, p.registry, emit)
	if err != nil {
		runErr = err
		return
	}
	iters = res.Iterations
}

// finalizeStream persists the delivered text and charges the run. It runs on
// a context detached from the consumer so cancellation cannot skip it.
func (r *Runner) finalizeStream(ctx context.Context, p *prepared, text string, runErr error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FinalizeTimeout)
	defer cancel()

	status := chat.StatusFinal
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		status = chat.StatusFailed
	}
	if p.messageID != "" {
		if err := r.cfg.Chats.Finalize(fctx, p.messageID, text, status); err != nil {
			log.Error().Err(err).Func(p.logFields).Msg("stream_finalize_failed")
		}
	}
	r.charge(fctx, p)
	log.Info().Func(p.logFields).Str("status", string(status)).Int("bytes", len(text)).Msg("stream_finalized")
}
