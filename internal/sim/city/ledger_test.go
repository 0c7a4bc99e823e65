package city

import (
	"errors"
	"log"
	"os"
	"testing"
)

func testLedger(t *testing.T, cfg CityConfig) *Ledger {
	t.Helper()
	cfg.applyDefaults()
	return NewLedger(&cfg, "red-button", log.New(os.Stderr, "[test] ", 0))
}

func TestLedger_RegisterAndConservation(t *testing.T) {
	l := testLedger(t, CityConfig{TotalSupply: 100_000, StartingTokens: 1000})
	if err := l.Register(0, "A1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := l.Balance("A1"); got != 1000 {
		t.Fatalf("balance after register = %d, want 1000", got)
	}
	v := l.Vault()
	if v.VaultBalance != 99_000 || v.Circulating != 1000 || v.TotalSupply != 100_000 {
		t.Fatalf("vault after register = %+v", v)
	}
	if err := l.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}
}

func TestLedger_EarnWithholdsTax(t *testing.T) {
	l := testLedger(t, CityConfig{TotalSupply: 100_000, StartingTokens: 1000, TaxRatePercent: 10})
	_ = l.Register(0, "A1")
	net, tax := l.Earn(1, "A1", 200, "work")
	if net != 180 || tax != 20 {
		t.Fatalf("earn = (%d, %d), want (180, 20)", net, tax)
	}
	if got := l.Balance("A1"); got != 1180 {
		t.Fatalf("balance = %d, want 1180", got)
	}
	if err := l.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}
}

func TestLedger_WealthCapClampsEarn(t *testing.T) {
	// Cap is 5% of 10_000: balance may never exceed 500.
	l := testLedger(t, CityConfig{TotalSupply: 10_000, StartingTokens: 400, TaxRatePercent: 10})
	_ = l.Register(0, "A1")
	net, tax := l.Earn(1, "A1", 1000, "work")
	if tax != 100 {
		t.Fatalf("tax = %d, want 100", tax)
	}
	if net != 100 {
		t.Fatalf("net = %d, want clamp to 100 (cap 500 - balance 400)", net)
	}
	if got := l.Balance("A1"); got != 500 {
		t.Fatalf("balance = %d, want exactly the cap 500", got)
	}
	// The discarded excess must not exist anywhere.
	if err := l.CheckConservation(); err != nil {
		t.Fatalf("conservation after cap clamp: %v", err)
	}
}

func TestLedger_RegistrationIsNotCapped(t *testing.T) {
	// Starting tokens above the 5% line still credit in full.
	l := testLedger(t, CityConfig{TotalSupply: 10_000, StartingTokens: 900})
	_ = l.Register(0, "A1")
	if got := l.Balance("A1"); got != 900 {
		t.Fatalf("balance = %d, want 900 (cap does not bind registration)", got)
	}
}

func TestLedger_SpendInsufficientFunds(t *testing.T) {
	l := testLedger(t, CityConfig{TotalSupply: 100_000, StartingTokens: 100})
	_ = l.Register(0, "A1")
	if err := l.Spend(1, "A1", 500, "rent"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("spend = %v, want ErrInsufficientFunds", err)
	}
	if got := l.Balance("A1"); got != 100 {
		t.Fatalf("failed spend mutated balance: %d", got)
	}
}

func TestLedger_TransferRespectsFloor(t *testing.T) {
	l := testLedger(t, CityConfig{TotalSupply: 100_000, StartingTokens: 120, MinBalanceFloor: 50})
	_ = l.Register(0, "A1")
	_ = l.Register(0, "A2")
	moved := l.Transfer(1, "A1", "A2", 100, "trade")
	if moved != 70 {
		t.Fatalf("moved = %d, want clamp to 70 (floor 50)", moved)
	}
	if got := l.Balance("A1"); got != 50 {
		t.Fatalf("source = %d, want the floor 50", got)
	}
	// A source already at the floor cannot transfer at all.
	if moved := l.Transfer(1, "A1", "A2", 10, "trade"); moved != 0 {
		t.Fatalf("moved = %d, want 0", moved)
	}
}

func TestLedger_BurnDailySignalsStarvation(t *testing.T) {
	l := testLedger(t, CityConfig{TotalSupply: 100_000, StartingTokens: 150, DailyBurn: 100})
	_ = l.Register(0, "A1")
	if _, starved := l.BurnDaily(1, "A1"); starved {
		t.Fatal("starved on day 1 with 150 tokens")
	}
	burned, starved := l.BurnDaily(2, "A1")
	if burned != 50 || !starved {
		t.Fatalf("day 2 burn = (%d, %v), want (50, true)", burned, starved)
	}
	if got := l.Balance("A1"); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
	if err := l.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}
}

func TestLedger_FineClampsToBalance(t *testing.T) {
	l := testLedger(t, CityConfig{TotalSupply: 100_000, StartingTokens: 200})
	_ = l.Register(0, "A1")
	vaultBefore := l.Vault().VaultBalance
	if paid := l.Fine(1, "A1", 500, "court_fine"); paid != 200 {
		t.Fatalf("fine = %d, want clamp to 200", paid)
	}
	if got := l.Vault().VaultBalance; got != vaultBefore+200 {
		t.Fatalf("vault = %d, want %d", got, vaultBefore+200)
	}
}

func TestLedger_WelfareRequiresVaultFunds(t *testing.T) {
	l := testLedger(t, CityConfig{TotalSupply: 1000, StartingTokens: 990})
	_ = l.Register(0, "A1")
	// Vault holds 10; a 200 grant cannot be funded.
	if err := l.Welfare(1, "A1", 200); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("welfare = %v, want ErrInsufficientFunds", err)
	}
	if err := l.Welfare(1, "A1", 10); err != nil {
		t.Fatalf("welfare within vault: %v", err)
	}
}

func TestLedger_MintRequiresKey(t *testing.T) {
	l := testLedger(t, CityConfig{TotalSupply: 100_000})
	if _, err := l.Mint(1, 500, "operator", "wrong-key"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("mint with wrong key = %v, want ErrUnauthorized", err)
	}
	minted, err := l.Mint(1, 500, "operator", "red-button")
	if err != nil || minted != 500 {
		t.Fatalf("mint = (%d, %v), want (500, nil)", minted, err)
	}
	if got := l.Vault().TotalSupply; got != 100_500 {
		t.Fatalf("supply = %d, want 100500", got)
	}
}

func TestLedger_MintPeriodCap(t *testing.T) {
	l := testLedger(t, CityConfig{TotalSupply: 10_000, MintPeriodDays: 30, MintCapPercent: 10})
	minted, err := l.Mint(1, 5_000, "operator", "red-button")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if minted != 1_000 {
		t.Fatalf("minted = %d, want clamp to 1000 (10%% of supply)", minted)
	}
	// Same period: the cap is spent.
	if minted, _ := l.Mint(10, 1_000, "operator", "red-button"); minted > 100 {
		t.Fatalf("second mint in period = %d, want residual cap only", minted)
	}
	// Next period resets.
	if minted, _ := l.Mint(40, 500, "operator", "red-button"); minted != 500 {
		t.Fatalf("mint after period rollover = %d, want 500", minted)
	}
}

func TestLedger_ReplayReconstructsState(t *testing.T) {
	cfg := CityConfig{TotalSupply: 100_000, StartingTokens: 1000, TaxRatePercent: 10, MinBalanceFloor: 50, DailyBurn: 100}
	l := testLedger(t, cfg)
	_ = l.Register(0, "A1")
	_ = l.Register(0, "A2")
	l.Earn(1, "A1", 300, "work")
	l.Transfer(1, "A1", "A2", 200, "trade")
	_ = l.Spend(1, "A2", 50, "rent")
	l.BurnDaily(1, "A1")
	l.BurnDaily(1, "A2")
	l.Fine(2, "A2", 75, "court_fine")
	_ = l.Welfare(2, "A1", 120)
	if _, err := l.Mint(3, 400, "operator", "red-button"); err != nil {
		t.Fatalf("mint: %v", err)
	}

	balances, vault, err := Replay(100_000, l.Transactions())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	for _, id := range []string{"A1", "A2"} {
		if balances[id] != l.Balance(id) {
			t.Fatalf("replay %s = %d, live %d", id, balances[id], l.Balance(id))
		}
	}
	live := l.Vault()
	if vault != live {
		t.Fatalf("replay vault = %+v, live %+v", vault, live)
	}
}
