package frames

import (
	"sync/atomic"
	"time"
)

type Kind string

const (
	KindTranscript Kind = "transcript"
	KindLevel      Kind = "level"
	KindDelta      Kind = "delta"
	KindEndpoint   Kind = "endpoint"
	KindControl    Kind = "control"
	KindSystem     Kind = "system"
)

type ControlCode string

const (
	ControlMicOn         ControlCode = "mic_on"
	ControlMicOff        ControlCode = "mic_off"
	ControlSpeechOn      ControlCode = "speech_on"
	ControlSpeechOff     ControlCode = "speech_off"
	ControlStreamDone    ControlCode = "stream_done"
	ControlStreamError   ControlCode = "stream_error"
	ControlPlaybackDone  ControlCode = "playback_done"
	ControlPlaybackError ControlCode = "playback_error"
)

// Meta keys shared across frame producers.
const (
	MetaSessionID = "session_id"
	MetaSource    = "source"
	MetaReason    = "reason"
	MetaPersona   = "persona"
	MetaVoice     = "voice_id"
)

// Frame is the single currency of the turn controller's event queue. Every
// frame carries the turn generation it was produced under; handlers discard
// frames whose generation no longer matches the live turn.
type Frame interface {
	Kind() Kind
	Gen() uint64
	Meta() map[string]string
}

// TranscriptFrame is one recognizer result. Immutable after creation.
type TranscriptFrame struct {
	gen        uint64
	text       string
	isFinal    bool
	receivedAt time.Time
	meta       map[string]string
}

func NewTranscriptFrame(gen uint64, text string, isFinal bool, meta map[string]string) TranscriptFrame {
	return TranscriptFrame{
		gen:        gen,
		text:       text,
		isFinal:    isFinal,
		receivedAt: time.Now(),
		meta:       cloneMeta(meta),
	}
}

func (t TranscriptFrame) Kind() Kind              { return KindTranscript }
func (t TranscriptFrame) Gen() uint64             { return t.gen }
func (t TranscriptFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t TranscriptFrame) Text() string            { return t.text }
func (t TranscriptFrame) IsFinal() bool           { return t.isFinal }
func (t TranscriptFrame) ReceivedAt() time.Time   { return t.receivedAt }

func (t TranscriptFrame) WithGen(gen uint64) TranscriptFrame {
	t.gen = gen
	return t
}

// LevelFrame is one normalized microphone level sample in [0,1]. Samples are
// consumed immediately and never persisted.
type LevelFrame struct {
	gen   uint64
	value float64
	at    time.Time
}

func NewLevelFrame(gen uint64, value float64, at time.Time) LevelFrame {
	if at.IsZero() {
		at = time.Now()
	}
	return LevelFrame{gen: gen, value: value, at: at}
}

func (l LevelFrame) Kind() Kind              { return KindLevel }
func (l LevelFrame) Gen() uint64             { return l.gen }
func (l LevelFrame) Meta() map[string]string { return nil }
func (l LevelFrame) Value() float64          { return l.value }
func (l LevelFrame) At() time.Time           { return l.at }

// DeltaFrame is one incremental fragment of a streamed assistant reply.
type DeltaFrame struct {
	gen  uint64
	text string
	meta map[string]string
}

func NewDeltaFrame(gen uint64, text string, meta map[string]string) DeltaFrame {
	return DeltaFrame{gen: gen, text: text, meta: cloneMeta(meta)}
}

func (d DeltaFrame) Kind() Kind              { return KindDelta }
func (d DeltaFrame) Gen() uint64             { return d.gen }
func (d DeltaFrame) Meta() map[string]string { return cloneMeta(d.meta) }
func (d DeltaFrame) Text() string            { return d.text }

func (d DeltaFrame) WithGen(gen uint64) DeltaFrame {
	d.gen = gen
	return d
}

// EndpointFrame signals silence-window expiry. Epoch identifies the arming of
// the endpoint timer that produced it; a restart invalidates earlier epochs.
type EndpointFrame struct {
	epoch uint64
	at    time.Time
}

func NewEndpointFrame(epoch uint64, at time.Time) EndpointFrame {
	if at.IsZero() {
		at = time.Now()
	}
	return EndpointFrame{epoch: epoch, at: at}
}

func (e EndpointFrame) Kind() Kind              { return KindEndpoint }
func (e EndpointFrame) Gen() uint64             { return e.epoch }
func (e EndpointFrame) Meta() map[string]string { return nil }
func (e EndpointFrame) Epoch() uint64           { return e.epoch }
func (e EndpointFrame) At() time.Time           { return e.at }

type ControlFrame struct {
	gen  uint64
	code ControlCode
	meta map[string]string
}

func NewControlFrame(gen uint64, code ControlCode, meta map[string]string) ControlFrame {
	return ControlFrame{gen: gen, code: code, meta: cloneMeta(meta)}
}

func (c ControlFrame) Kind() Kind              { return KindControl }
func (c ControlFrame) Gen() uint64             { return c.gen }
func (c ControlFrame) Meta() map[string]string { return cloneMeta(c.meta) }
func (c ControlFrame) Code() ControlCode       { return c.code }

func (c ControlFrame) WithGen(gen uint64) ControlFrame {
	c.gen = gen
	return c
}

// SystemFrame carries out-of-band events (assistant title updates, recognizer
// notices) that the controller passes through without acting on.
type SystemFrame struct {
	gen  uint64
	name string
	meta map[string]string
}

func NewSystemFrame(gen uint64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{gen: gen, name: name, meta: cloneMeta(meta)}
}

func (s SystemFrame) Kind() Kind              { return KindSystem }
func (s SystemFrame) Gen() uint64             { return s.gen }
func (s SystemFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SystemFrame) Name() string            { return s.name }

func (s SystemFrame) WithGen(gen uint64) SystemFrame {
	s.gen = gen
	return s
}

// Retag returns a copy of f carrying gen. Producers that do not know the live
// turn generation emit frames with gen zero; the controller retags them as it
// forwards them into its queue.
func Retag(f Frame, gen uint64) Frame {
	switch v := f.(type) {
	case TranscriptFrame:
		return v.WithGen(gen)
	case DeltaFrame:
		return v.WithGen(gen)
	case ControlFrame:
		return v.WithGen(gen)
	case SystemFrame:
		return v.WithGen(gen)
	default:
		return f
	}
}

// GenSeq issues monotonically increasing turn generations.
type GenSeq struct {
	value atomic.Uint64
}

func NewGenSeq() *GenSeq { return &GenSeq{} }

func (g *GenSeq) Next() uint64 {
	return g.value.Add(1)
}

func (g *GenSeq) Current() uint64 {
	return g.value.Load()
}

func cloneMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
