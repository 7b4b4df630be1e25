package core

// ServiceContext is the per-request envelope threaded through every core
// service call: caller identity, optional originating transaction hash, a
// cycle budget and meter, block height, a deterministic timestamp, the
// impersonation capability slot ("extra"), and an event sink shared by the
// whole request so that sub-service emissions surface on the outer
// receipt.

import "sync"

// EventRecord is the ordered public log entry of a successful request.
type EventRecord struct {
	ServiceName string `json:"service_name"`
	EventName   string `json:"event_name"`
	Data        string `json:"data"`
}

// eventSink is shared by value-copy-free reference across every clone of a
// ServiceContext within one request, so nested calls' events all land on
// the same ordered log.
type eventSink struct {
	mu     sync.Mutex
	events []EventRecord
}

func (s *eventSink) emit(service, event, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, EventRecord{ServiceName: service, EventName: event, Data: data})
}

func (s *eventSink) all() []EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventRecord, len(s.events))
	copy(out, s.events)
	return out
}

// cycleMeter is the interior-mutable cycle counter shared across clones of
// one ServiceContext, per Design Notes: "an interior-mutable counter with
// well-defined semantics: sub_cycles(n) -> bool".
type cycleMeter struct {
	mu    sync.Mutex
	limit uint64
	used  uint64
}

func (c *cycleMeter) subCycles(n uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.used+n > c.limit {
		return false
	}
	c.used += n
	return true
}

func (c *cycleMeter) cyclesUsed() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

func (c *cycleMeter) cyclesLimit() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}

// ServiceContext is cheap to clone: the meter and event sink are shared by
// reference, only caller/tx-hash/height/timestamp/extra are copied.
type ServiceContext struct {
	Caller      Address
	TxHash      *Hash
	Height      uint64
	Timestamp   uint64 // milliseconds, set deterministically per block
	Extra       []byte // impersonation capability token
	meter       *cycleMeter
	sink        *eventSink
}

// NewServiceContext constructs the top-level context for one incoming
// transaction. cyclesLimit bounds the entire request; no sub-call may push
// the shared meter past it.
func NewServiceContext(caller Address, txHash *Hash, height, timestampMs, cyclesLimit uint64) *ServiceContext {
	return &ServiceContext{
		Caller:    caller,
		TxHash:    txHash,
		Height:    height,
		Timestamp: timestampMs,
		meter:     &cycleMeter{limit: cyclesLimit},
		sink:      &eventSink{},
	}
}

// Clone returns a context for a nested/sub-service call that shares this
// context's cycle meter and event sink and copies its Extra capability
// token; WithExtra and WithCaller then replace the token or the caller.
//
// External transaction ingress MUST NOT be able to set Extra to a value
// that collides with an internal capability token;
// only in-process code calling Clone may attach one.
func (c *ServiceContext) Clone() *ServiceContext {
	return &ServiceContext{
		Caller:    c.Caller,
		TxHash:    c.TxHash,
		Height:    c.Height,
		Timestamp: c.Timestamp,
		Extra:     c.Extra,
		meter:     c.meter,
		sink:      c.sink,
	}
}

// WithExtra returns a clone carrying the given impersonation token.
func (c *ServiceContext) WithExtra(extra []byte) *ServiceContext {
	clone := c.Clone()
	clone.Extra = extra
	return clone
}

// WithCaller returns a clone acting with a different caller identity, used
// when a contract-to-contract call changes the effective caller.
func (c *ServiceContext) WithCaller(caller Address) *ServiceContext {
	clone := c.Clone()
	clone.Caller = caller
	return clone
}

// SubCycles deducts n cycles from the shared meter, failing with
// OutOfCycles if doing so would exceed the request's limit.
func (c *ServiceContext) SubCycles(n uint64) error {
	if !c.meter.subCycles(n) {
		return ErrOutOfCycles()
	}
	return nil
}

func (c *ServiceContext) CyclesUsed() uint64  { return c.meter.cyclesUsed() }
func (c *ServiceContext) CyclesLimit() uint64 { return c.meter.cyclesLimit() }

// Emit appends an event to the shared per-request log.
func (c *ServiceContext) Emit(service, event, data string) {
	c.sink.emit(service, event, data)
}

// Events returns every event emitted so far within this request, in
// program order.
func (c *ServiceContext) Events() []EventRecord { return c.sink.all() }

// capability token well-known values.
const (
	capAssetService = "asset_service"
	capGovernance   = "governance"
)

func (c *ServiceContext) hasCapability(token string) bool {
	return string(c.Extra) == token
}
