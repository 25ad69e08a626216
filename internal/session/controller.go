// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/codec"
	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// TURN STATE
// =============================================================================

// State is the turn controller state.
type State int32

const (
	StateIdle State = iota
	StateAwaitingInput
	StateDispatching
	StateStreaming
	StateCommitting
	StateResetRequested
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingInput:
		return "awaiting-input"
	case StateDispatching:
		return "dispatching"
	case StateStreaming:
		return "streaming"
	case StateCommitting:
		return "committing"
	case StateResetRequested:
		return "reset-requested"
	default:
		return "unknown"
	}
}

// Busy reports whether a turn is past input handling.
func (s State) Busy() bool {
	return s == StateDispatching || s == StateStreaming || s == StateCommitting
}

// =============================================================================
// OPTIONS
// =============================================================================

// Default option values.
const (
	DefaultMaxTokens   = 1024
	DefaultIdleTimeout = 60 * time.Second
)

// Options are the per-request settings of a controller.
type Options struct {
	// Model is the remote model identifier.
	Model string

	// MaxTokens caps the length of each reply.
	MaxTokens int

	// IdleTimeout cancels a stream that delivers nothing for this long.
	// Zero disables the watchdog.
	IdleTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = model.DefaultModel
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller runs turns against a session. At most one turn is in flight;
// input arriving meanwhile is rejected with ErrTurnInFlight.
type Controller struct {
	session  *Session
	streamer cloud.Streamer
	sink     Sink
	logger   *zap.Logger

	optsMu sync.RWMutex
	opts   Options

	busy  atomic.Bool
	state atomic.Int32

	cancelMu sync.Mutex
	cancel   context.CancelCauseFunc
}

// NewController binds a session to a streamer and a sink. The session's
// access gate is checked here, once.
func NewController(s *Session, streamer cloud.Streamer, sink Sink, opts Options) (*Controller, error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	if !s.Authorized() {
		return nil, ErrNotAuthorized
	}
	return &Controller{
		session:  s,
		streamer: streamer,
		sink:     sink,
		logger:   s.logger.Named("turn"),
		opts:     opts.withDefaults(),
	}, nil
}

// State returns the current controller state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// Options returns the current request options.
func (c *Controller) Options() Options {
	c.optsMu.RLock()
	defer c.optsMu.RUnlock()
	return c.opts
}

// SetOptions replaces the request options for subsequent turns.
func (c *Controller) SetOptions(opts Options) {
	c.optsMu.Lock()
	defer c.optsMu.Unlock()
	c.opts = opts.withDefaults()
}

// Cancel aborts the in-flight turn, if any.
func (c *Controller) Cancel() {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	if c.cancel != nil {
		c.cancel(ErrTurnCancelled)
	}
}

func (c *Controller) setCancel(fn context.CancelCauseFunc) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	c.cancel = fn
}

// acquire claims the single turn slot.
func (c *Controller) acquire() error {
	if c.session.Closed() {
		return ErrSessionClosed
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrTurnInFlight
	}
	return nil
}

func (c *Controller) release() {
	c.setState(StateIdle)
	c.busy.Store(false)
}

// =============================================================================
// INPUT HANDLING
// =============================================================================

// Handle processes one user action.
func (c *Controller) Handle(ctx context.Context, in Input) error {
	if in.IsImage() {
		return c.PasteImage(*in.Image)
	}
	return c.Submit(ctx, in.Text)
}

// Submit handles typed input: the reset command, or a full text turn.
// Blank input is ignored.
func (c *Controller) Submit(ctx context.Context, text string) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.setState(StateAwaitingInput)
	c.session.RecordActivity()

	if IsResetCommand(text) {
		c.setState(StateResetRequested)
		c.session.Reset()
		c.sink.NotifyReset()
		c.sink.DisplayHistory(c.session.Conversation().Snapshot())
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.setState(StateDispatching)
	conv := c.session.Conversation()
	if err := conv.Append(model.NewUserText(text)); err != nil {
		c.sink.DisplayError(err)
		return err
	}
	c.sink.DisplayHistory(conv.Snapshot())

	err := c.runTurn(ctx)
	c.session.recordTurn(err == nil)
	return err
}

// PasteImage appends a user image without dispatching a turn. The image
// becomes context for the next text turn.
func (c *Controller) PasteImage(img model.Image) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	c.session.RecordActivity()

	msg := model.NewUserImage(img.MediaType, img.Data)
	if _, err := codec.EncodeForWire(msg); err != nil {
		c.sink.DisplayError(err)
		return err
	}
	conv := c.session.Conversation()
	if err := conv.Append(msg); err != nil {
		c.sink.DisplayError(err)
		return err
	}
	c.logger.Debug("image appended",
		zap.String("media_type", img.MediaType),
		zap.Int("bytes", len(img.Data)))
	c.sink.DisplayHistory(conv.Snapshot())
	return nil
}

// Run pulls input from src until it returns io.EOF or ctx ends. Turn
// errors have already been shown through the sink and do not stop the loop.
func (c *Controller) Run(ctx context.Context, src InputSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		in, err := src.RequestInput(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := c.Handle(ctx, in); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return err
			}
			c.logger.Debug("input not completed", zap.Error(err))
		}
	}
}

// =============================================================================
// TURN EXECUTION
// =============================================================================

// runTurn streams one reply for the current history. On any failure the
// live reply is discarded and nothing is committed.
func (c *Controller) runTurn(ctx context.Context) error {
	conv := c.session.Conversation()
	opts := c.Options()
	started := time.Now()

	wire, err := codec.EncodeAll(conv.Snapshot())
	if err != nil {
		c.sink.DisplayError(err)
		return err
	}

	turnCtx, cancel := context.WithCancelCause(ctx)
	c.setCancel(cancel)
	defer func() {
		c.setCancel(nil)
		cancel(nil)
	}()

	reply, err := conv.BeginReply()
	if err != nil {
		c.sink.DisplayError(err)
		return err
	}
	defer reply.Discard()

	// Armed before Open so a server that never answers also times out.
	wd := startWatchdog(opts.IdleTimeout, func() { cancel(ErrStreamStalled) })
	defer wd.Stop()

	stream, err := c.streamer.Open(turnCtx, cloud.Request{
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
		Messages:  wire,
	})
	if err != nil {
		return c.fail(turnCtx, "dispatch", err)
	}
	defer stream.Close()

	c.setState(StateStreaming)
	wd.Kick()

	fragments := 0
	for stream.Next() {
		wd.Kick()
		frag := stream.Fragment()
		if frag == "" {
			continue
		}
		acc, err := reply.Append(frag)
		if err != nil {
			c.sink.DisplayError(err)
			return err
		}
		fragments++
		c.sink.DisplayLive(acc)
	}
	if err := stream.Err(); err != nil {
		return c.fail(turnCtx, "streaming", err)
	}
	if err := turnCtx.Err(); err != nil {
		return c.fail(turnCtx, "streaming", err)
	}

	c.setState(StateCommitting)
	msg, err := reply.Commit()
	if err != nil {
		c.sink.DisplayError(err)
		return err
	}
	final, _ := msg.Text()
	c.sink.DisplayLive(final)
	c.sink.DisplayHistory(conv.Snapshot())

	c.logger.Info("turn complete",
		zap.String("model", opts.Model),
		zap.Int("fragments", fragments),
		zap.Int("chars", len(final)),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// fail wraps a remote failure, replacing a bare context error with the
// cancellation cause, and reports it through the sink.
func (c *Controller) fail(turnCtx context.Context, op string, err error) error {
	if cause := context.Cause(turnCtx); cause != nil && !errors.Is(err, cause) {
		if errors.Is(cause, ErrStreamStalled) || errors.Is(cause, ErrTurnCancelled) {
			err = cause
		}
	}
	rerr := &RemoteCallError{Op: op, Err: err}
	c.logger.Warn("turn failed", zap.String("op", op), zap.Error(err))
	c.sink.DisplayError(rerr)
	return rerr
}

// =============================================================================
// IDLE WATCHDOG
// =============================================================================

// watchdog fires once if Kick is not called within the timeout.
type watchdog struct {
	timer   *time.Timer
	timeout time.Duration
}

func startWatchdog(timeout time.Duration, fire func()) *watchdog {
	if timeout <= 0 {
		return &watchdog{}
	}
	return &watchdog{timer: time.AfterFunc(timeout, fire), timeout: timeout}
}

// Kick restarts the countdown.
func (w *watchdog) Kick() {
	if w.timer != nil {
		w.timer.Reset(w.timeout)
	}
}

// Stop disarms the watchdog.
func (w *watchdog) Stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}
