package vm

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"alkadex/core/types"
	"alkadex/storage"
)

// Contract is anything executable at an alkane id.
type Contract interface {
	Execute(ctx *types.CallContext, opcode uint64, inputs []*uint256.Int) (*types.CallResponse, error)
}

// Template constructs a contract instance over its bound storage.
type Template func(store *State) Contract

// ContractBlock is the id block under which the runtime allocates contract
// instances.
const ContractBlock = 2

var (
	sequenceKey    = []byte("vm/sequence")
	instancePrefix = []byte("vm/instance/")
)

func instanceKey(id types.AlkaneID) []byte {
	buf := make([]byte, 0, len(instancePrefix)+32)
	buf = append(buf, instancePrefix...)
	return append(buf, id.Bytes()...)
}

// Runtime hosts contracts over a database. Each outermost call executes
// against an overlay that commits only on success, so a revert anywhere in
// the call tree discards every state write and transfer it caused. The
// runtime is deterministic: block height and time are inputs, and the
// logger and trace ids never feed back into execution.
type Runtime struct {
	mu        sync.Mutex
	db        storage.Database
	templates map[string]Template
	height    uint64
	time      uint64
	log       *slog.Logger
}

// NewRuntime builds a runtime over the given database.
func NewRuntime(db storage.Database) *Runtime {
	return &Runtime{
		db:        db,
		templates: make(map[string]Template),
		log:       slog.Default(),
	}
}

// SetLogger overrides the call-trace logger.
func (rt *Runtime) SetLogger(log *slog.Logger) {
	if rt == nil || log == nil {
		return
	}
	rt.log = log
}

// RegisterTemplate makes a contract constructor available under a name.
func (rt *Runtime) RegisterTemplate(name string, template Template) {
	rt.templates[name] = template
}

// SetBlock positions the runtime at a block height and timestamp; every call
// until the next SetBlock observes these values.
func (rt *Runtime) SetBlock(height, time uint64) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.height = height
	rt.time = time
}

// Height returns the current block height.
func (rt *Runtime) Height() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.height
}

// Deploy instantiates a template outside of any call, crediting the init
// response to the deployer. Inputs carry the init opcode first, like any
// call.
func (rt *Runtime) Deploy(deployer types.AlkaneID, template string, inputs []*uint256.Int, transfers types.TransferParcel) (types.AlkaneID, *types.CallResponse, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	overlay := storage.NewOverlay(rt.db)
	id, resp, err := rt.create(overlay, deployer, template, inputs, transfers)
	if err != nil {
		rt.log.Warn("deploy reverted", "template", template, "error", err.Error())
		return types.AlkaneID{}, nil, err
	}
	if err := overlay.Commit(); err != nil {
		return types.AlkaneID{}, nil, err
	}
	rt.log.Info("deploy", "trace", uuid.NewString(), "template", template, "id", id.String(), "height", rt.height)
	return id, resp, nil
}

// Execute runs one outermost call and commits it atomically on success.
func (rt *Runtime) Execute(caller, target types.AlkaneID, inputs []*uint256.Int, transfers types.TransferParcel) (*types.CallResponse, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	overlay := storage.NewOverlay(rt.db)
	resp, err := rt.call(overlay, caller, target, inputs, transfers)
	if err != nil {
		rt.log.Warn("call reverted", "target", target.String(), "height", rt.height, "error", err.Error())
		return nil, err
	}
	if err := overlay.Commit(); err != nil {
		return nil, err
	}
	rt.log.Info("call", "trace", uuid.NewString(), "target", target.String(), "height", rt.height)
	return resp, nil
}

// Balance reads a committed ledger balance.
func (rt *Runtime) Balance(owner, token types.AlkaneID) (*uint256.Int, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return getBalance(rt.db, owner, token)
}

// call runs one frame against its own overlay and merges into the parent
// only on success.
func (rt *Runtime) call(parent storage.Database, caller, target types.AlkaneID, inputs []*uint256.Int, transfers types.TransferParcel) (*types.CallResponse, error) {
	if len(inputs) == 0 {
		return nil, errors.New("vm: call inputs must carry an opcode")
	}
	overlay := storage.NewOverlay(parent)
	contract, err := rt.contractAt(overlay, target)
	if err != nil {
		return nil, err
	}
	if err := debit(overlay, caller, transfers); err != nil {
		return nil, err
	}
	if err := credit(overlay, target, transfers); err != nil {
		return nil, err
	}
	ctx := &types.CallContext{
		Myself:   target,
		Caller:   caller,
		Incoming: transfers,
		Height:   rt.height,
		Time:     rt.time,
		Host:     &frame{rt: rt, db: overlay, self: target},
	}
	resp, err := contract.Execute(ctx, inputs[0].Uint64(), inputs[1:])
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &types.CallResponse{}
	}
	if err := debit(overlay, target, resp.Alkanes); err != nil {
		return nil, err
	}
	if err := credit(overlay, caller, resp.Alkanes); err != nil {
		return nil, err
	}
	if err := overlay.Commit(); err != nil {
		return nil, err
	}
	return resp, nil
}

// create allocates an id, records the instance and runs its init call.
func (rt *Runtime) create(parent storage.Database, creator types.AlkaneID, template string, inputs []*uint256.Int, transfers types.TransferParcel) (types.AlkaneID, *types.CallResponse, error) {
	if _, ok := rt.templates[template]; !ok {
		return types.AlkaneID{}, nil, fmt.Errorf("vm: unknown template %q", template)
	}
	sequence, err := rt.nextSequence(parent)
	if err != nil {
		return types.AlkaneID{}, nil, err
	}
	id := types.NewAlkaneID(ContractBlock, sequence)
	if err := parent.Put(instanceKey(id), []byte(template)); err != nil {
		return types.AlkaneID{}, nil, err
	}
	resp, err := rt.call(parent, creator, id, inputs, transfers)
	if err != nil {
		return types.AlkaneID{}, nil, err
	}
	return id, resp, nil
}

func (rt *Runtime) nextSequence(db storage.Database) (uint64, error) {
	next := uint64(1)
	raw, err := db.Get(sequenceKey)
	if err == nil {
		parsed, perr := types.U128FromBytes(raw)
		if perr != nil {
			return 0, perr
		}
		next = parsed.Uint64() + 1
	} else if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	if err := db.Put(sequenceKey, types.AppendU128(nil, uint256.NewInt(next))); err != nil {
		return 0, err
	}
	return next, nil
}

func (rt *Runtime) contractAt(db storage.Database, id types.AlkaneID) (Contract, error) {
	raw, err := db.Get(instanceKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("vm: no contract at %s", id)
	}
	if err != nil {
		return nil, err
	}
	template, ok := rt.templates[string(raw)]
	if !ok {
		return nil, fmt.Errorf("vm: instance %s references unknown template %q", id, raw)
	}
	return template(NewState(db, id)), nil
}

// frame is the Host view handed to an executing contract.
type frame struct {
	rt   *Runtime
	db   storage.Database
	self types.AlkaneID
}

func (f *frame) Call(target types.AlkaneID, inputs []*uint256.Int, transfers types.TransferParcel) (*types.CallResponse, error) {
	return f.rt.call(f.db, f.self, target, inputs, transfers)
}

func (f *frame) Create(template string, inputs []*uint256.Int, transfers types.TransferParcel) (types.AlkaneID, *types.CallResponse, error) {
	return f.rt.create(f.db, f.self, template, inputs, transfers)
}

func (f *frame) Balance(owner, token types.AlkaneID) *uint256.Int {
	balance, err := getBalance(f.db, owner, token)
	if err != nil {
		return new(uint256.Int)
	}
	return balance
}
