package city

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvariant         = errors.New("invariant violation")
	ErrUnknownAgent      = errors.New("unknown agent")
)

// Ledger is the city's central bank. Every token that exists passes through
// here; every mutation writes exactly one transaction. Writers serialize
// behind a single mutex; balance reads are snapshots.
//
// Burns and spends retire tokens to the sink: both circulating and total
// supply shrink, so conservation (sum of balances + vault = total supply)
// holds at every point.
type Ledger struct {
	mu sync.Mutex

	balances    map[string]int
	vault       int
	totalSupply int

	txs    []Transaction
	nextTx uint64

	// Mint guard state.
	mintKey          string
	mintPeriodStart  int
	mintedThisPeriod int

	cfg *CityConfig
	log *log.Logger
}

func NewLedger(cfg *CityConfig, mintKey string, logger *log.Logger) *Ledger {
	return &Ledger{
		balances:    map[string]int{},
		vault:       cfg.TotalSupply,
		totalSupply: cfg.TotalSupply,
		mintKey:     mintKey,
		cfg:         cfg,
		log:         logger,
	}
}

func (l *Ledger) record(day int, from, to string, amount, tax int, reason string, kind TxKind) Transaction {
	l.nextTx++
	tx := Transaction{
		ID:          l.nextTx,
		Day:         day,
		From:        from,
		To:          to,
		Amount:      amount,
		TaxWithheld: tax,
		Reason:      reason,
		Kind:        kind,
	}
	l.txs = append(l.txs, tx)
	return tx
}

// Register credits the fixed starting balance from the vault and writes a
// mint-kind transaction. The 5% cap does not apply at registration.
func (l *Ledger) Register(day int, agentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[agentID]; ok {
		return nil
	}
	start := l.cfg.StartingTokens
	if l.vault < start {
		start = l.vault
	}
	l.balances[agentID] = start
	if start > 0 {
		l.vault -= start
		l.record(day, CityVault, agentID, start, 0, "agent_birth", TxMint)
	}
	return nil
}

// Earn credits net-of-tax income to the agent, tax to the vault. The wealth
// cap clamps the net so no agent holds more than the configured share of
// total supply; the unpaid excess is discarded, not minted elsewhere.
func (l *Ledger) Earn(day int, agentID string, gross int, reason string) (net, tax int) {
	if gross <= 0 {
		return 0, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.balances[agentID]
	if !ok {
		return 0, 0
	}
	tax = gross * l.cfg.TaxRatePercent / 100
	net = gross - tax

	maxAllowed := l.totalSupply * l.cfg.WealthCapPercent / 100
	if cur+net > maxAllowed {
		clamped := maxAllowed - cur
		if clamped < 0 {
			clamped = 0
		}
		l.log.Printf("ledger: %s hit the wealth cap, earn reduced %d -> %d", agentID, net, clamped)
		net = clamped
	}

	// Net comes out of the sink (new work), tax routes to the vault. Only
	// net + tax enter circulation, so supply grows by exactly that amount
	// and the discarded cap excess never exists.
	if net+tax == 0 {
		return 0, 0
	}
	l.balances[agentID] = cur + net
	l.vault += tax
	l.totalSupply += net + tax
	// The recorded amount is the credited net plus tax, not the requested
	// gross: the log must replay to the exact post-cap balances.
	l.record(day, "", agentID, net+tax, tax, reason, TxEarn)
	return net, tax
}

// Spend debits the agent and retires the tokens to the sink.
func (l *Ledger) Spend(day int, agentID string, amount int, reason string) error {
	if amount <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.balances[agentID]
	if !ok {
		return ErrUnknownAgent
	}
	if cur < amount {
		return ErrInsufficientFunds
	}
	l.balances[agentID] = cur - amount
	l.totalSupply -= amount
	l.record(day, agentID, "", amount, 0, reason, TxSpend)
	return nil
}

// Transfer moves tokens between agents, clamped so the source does not drop
// below the minimum balance floor. Returns the actual amount moved; zero
// means the transfer failed.
func (l *Ledger) Transfer(day int, from, to string, amount int, reason string) int {
	if amount <= 0 || from == to {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.balances[from]
	if !ok {
		return 0
	}
	if _, ok := l.balances[to]; !ok {
		return 0
	}
	room := cur - l.cfg.MinBalanceFloor
	if room < 0 {
		room = 0
	}
	actual := amount
	if actual > room {
		actual = room
	}
	// The recipient cannot cross the wealth cap either; the remainder
	// stays with the sender.
	capRoom := l.totalSupply*l.cfg.WealthCapPercent/100 - l.balances[to]
	if actual > capRoom {
		actual = capRoom
	}
	if actual <= 0 {
		return 0
	}
	l.balances[from] = cur - actual
	l.balances[to] += actual
	l.record(day, from, to, actual, 0, reason, TxTransfer)
	return actual
}

// Deduct is the one-sided victim debit used by theft: no tax, no cap, no
// floor protection beyond zero. The debited tokens retire; the caller
// credits the thief separately through Earn (taxed and capped).
func (l *Ledger) Deduct(day int, agentID string, amount int, reason string) int {
	if amount <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.balances[agentID]
	if !ok {
		return 0
	}
	actual := amount
	if actual > cur {
		actual = cur
	}
	if actual <= 0 {
		return 0
	}
	l.balances[agentID] = cur - actual
	l.totalSupply -= actual
	l.record(day, agentID, "", actual, 0, reason, TxSpend)
	return actual
}

// BurnDaily applies the unconditional existence cost. If the burn drives
// the balance to zero the caller is signaled that the agent starves.
func (l *Ledger) BurnDaily(day int, agentID string) (burned int, starved bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.balances[agentID]
	if !ok {
		return 0, false
	}
	burned = l.cfg.DailyBurn
	if burned > cur {
		burned = cur
	}
	if burned > 0 {
		l.balances[agentID] = cur - burned
		l.totalSupply -= burned
		l.record(day, agentID, "", burned, 0, "daily_existence_cost", TxBurn)
	}
	return burned, cur-burned <= 0
}

// Fine transfers up to amount from the criminal to the vault, clamped to
// the available balance.
func (l *Ledger) Fine(day int, agentID string, amount int, reason string) int {
	if amount <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.balances[agentID]
	if !ok {
		return 0
	}
	actual := amount
	if actual > cur {
		actual = cur
	}
	if actual <= 0 {
		return 0
	}
	l.balances[agentID] = cur - actual
	l.vault += actual
	l.record(day, agentID, CityVault, actual, 0, reason, TxFine)
	return actual
}

// Welfare grants from the vault to the agent, if the vault can fund it.
func (l *Ledger) Welfare(day int, agentID string, amount int) error {
	if amount <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[agentID]; !ok {
		return ErrUnknownAgent
	}
	if l.vault < amount {
		return ErrInsufficientFunds
	}
	l.vault -= amount
	l.balances[agentID] += amount
	l.record(day, CityVault, agentID, amount, 0, "welfare", TxWelfare)
	return nil
}

// VaultSpend pays a vault-funded community grant to an agent (public-goods
// policy). Welfare-kind transaction with a distinct reason.
func (l *Ledger) VaultSpend(day int, agentID string, amount int, reason string) int {
	if amount <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[agentID]; !ok {
		return 0
	}
	if l.vault < amount {
		amount = l.vault
	}
	if amount <= 0 {
		return 0
	}
	l.vault -= amount
	l.balances[agentID] += amount
	l.record(day, CityVault, agentID, amount, 0, reason, TxWelfare)
	return amount
}

// Mint is the guarded supply expansion: it requires the operator key and is
// capped per period at a fraction of current supply.
func (l *Ledger) Mint(day int, amount int, authorizedBy, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mintKey == "" || key != l.mintKey {
		l.log.Printf("ledger: UNAUTHORIZED mint attempt by %q", authorizedBy)
		return 0, ErrUnauthorized
	}
	if day-l.mintPeriodStart >= l.cfg.MintPeriodDays {
		l.mintPeriodStart = day
		l.mintedThisPeriod = 0
	}
	maxMint := l.totalSupply*l.cfg.MintCapPercent/100 - l.mintedThisPeriod
	if maxMint < 0 {
		maxMint = 0
	}
	if amount > maxMint {
		l.log.Printf("ledger: mint %d exceeds period cap, clamped to %d", amount, maxMint)
		amount = maxMint
	}
	if amount <= 0 {
		return 0, nil
	}
	l.totalSupply += amount
	l.vault += amount
	l.mintedThisPeriod += amount
	l.record(day, "", CityVault, amount, 0, fmt.Sprintf("authorized_by_%s", authorizedBy), TxMint)
	return amount, nil
}

// lastTxID returns the id of the newest transaction, the per-day delta
// watermark.
func (l *Ledger) lastTxID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextTx
}

func (l *Ledger) Balance(agentID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[agentID]
}

func (l *Ledger) Known(agentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.balances[agentID]
	return ok
}

type VaultState struct {
	TotalSupply  int
	Circulating  int
	VaultBalance int
}

func (l *Ledger) Vault() VaultState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return VaultState{
		TotalSupply:  l.totalSupply,
		Circulating:  l.totalSupply - l.vault,
		VaultBalance: l.vault,
	}
}

// Transactions returns a snapshot copy of the log.
func (l *Ledger) Transactions() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transaction, len(l.txs))
	copy(out, l.txs)
	return out
}

// TransactionsSince returns transactions with id > afterID, in id order.
func (l *Ledger) TransactionsSince(afterID uint64) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Transaction
	for _, tx := range l.txs {
		if tx.ID > afterID {
			out = append(out, tx)
		}
	}
	return out
}

// TransactionsAround returns transactions touching any of the given agents
// within [fromDay, toDay], used for case-window evidence.
func (l *Ledger) TransactionsAround(agents []string, fromDay, toDay int) []Transaction {
	set := map[string]bool{}
	for _, a := range agents {
		set[a] = true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Transaction
	for _, tx := range l.txs {
		if tx.Day < fromDay || tx.Day > toDay {
			continue
		}
		if set[tx.From] || set[tx.To] {
			out = append(out, tx)
		}
	}
	return out
}

// LedgerState is the full durable state of the ledger (snapshots).
type LedgerState struct {
	Balances         map[string]int
	Vault            int
	TotalSupply      int
	Transactions     []Transaction
	NextTx           uint64
	MintPeriodStart  int
	MintedThisPeriod int
}

func (l *Ledger) ExportState() LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	balances := make(map[string]int, len(l.balances))
	for k, v := range l.balances {
		balances[k] = v
	}
	txs := make([]Transaction, len(l.txs))
	copy(txs, l.txs)
	return LedgerState{
		Balances:         balances,
		Vault:            l.vault,
		TotalSupply:      l.totalSupply,
		Transactions:     txs,
		NextTx:           l.nextTx,
		MintPeriodStart:  l.mintPeriodStart,
		MintedThisPeriod: l.mintedThisPeriod,
	}
}

func (l *Ledger) RestoreState(s LedgerState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = map[string]int{}
	for k, v := range s.Balances {
		l.balances[k] = v
	}
	l.vault = s.Vault
	l.totalSupply = s.TotalSupply
	l.txs = append([]Transaction(nil), s.Transactions...)
	l.nextTx = s.NextTx
	l.mintPeriodStart = s.MintPeriodStart
	l.mintedThisPeriod = s.MintedThisPeriod
}

// CheckConservation verifies that the sum of balances plus the vault equals
// total supply and that no balance is negative. Failure is fatal to the
// tick.
func (l *Ledger) CheckConservation() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := 0
	for id, b := range l.balances {
		if b < 0 {
			return fmt.Errorf("%w: negative balance for %s: %d", ErrInvariant, id, b)
		}
		sum += b
	}
	if sum+l.vault != l.totalSupply {
		return fmt.Errorf("%w: balances %d + vault %d != supply %d", ErrInvariant, sum, l.vault, l.totalSupply)
	}
	return nil
}

// Replay rebuilds balances and vault from a transaction log alone, starting
// from a zero state with the given initial supply in the vault. Used by the
// replay tool and the log-replay invariant test.
func Replay(initialSupply int, txs []Transaction) (balances map[string]int, vault VaultState, err error) {
	balances = map[string]int{}
	v := initialSupply
	supply := initialSupply
	apply := func(tx Transaction) error {
		switch tx.Kind {
		case TxMint:
			if tx.From == CityVault {
				// Registration mint: vault -> agent.
				v -= tx.Amount
				balances[tx.To] += tx.Amount
			} else {
				supply += tx.Amount
				v += tx.Amount
			}
		case TxEarn:
			net := tx.Amount - tx.TaxWithheld
			balances[tx.To] += net
			v += tx.TaxWithheld
			supply += net + tx.TaxWithheld
		case TxSpend, TxBurn:
			balances[tx.From] -= tx.Amount
			supply -= tx.Amount
		case TxTransfer:
			balances[tx.From] -= tx.Amount
			balances[tx.To] += tx.Amount
		case TxTax:
			balances[tx.From] -= tx.Amount
			v += tx.Amount
		case TxFine:
			balances[tx.From] -= tx.Amount
			v += tx.Amount
		case TxWelfare:
			v -= tx.Amount
			balances[tx.To] += tx.Amount
		default:
			return fmt.Errorf("unknown tx kind %q", tx.Kind)
		}
		return nil
	}
	for _, tx := range txs {
		if err := apply(tx); err != nil {
			return nil, VaultState{}, err
		}
	}
	sum := 0
	for _, b := range balances {
		sum += b
	}
	return balances, VaultState{TotalSupply: supply, Circulating: supply - v, VaultBalance: v}, nil
}
