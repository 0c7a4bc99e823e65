// Replay verifies a checkpoint offline: it replays the transaction log
// from a zero state and checks that the result reconciles with the
// snapshot's balances and vault.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"aicity.ai/internal/persistence/citydb"
	"aicity.ai/internal/sim/city"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "snapshot file to verify")
		verbose  = flag.Bool("v", false, "print per-agent balances")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)
	if *snapPath == "" {
		logger.Fatal("usage: replay -snapshot <file>")
	}

	snap, err := citydb.ReadSnapshot(*snapPath)
	if err != nil {
		logger.Fatalf("read snapshot: %v", err)
	}

	var txs []city.Transaction
	for _, tv := range snap.Ledger.Transactions {
		txs = append(txs, city.Transaction{
			ID: tv.ID, Day: tv.Day, From: tv.From, To: tv.To,
			Amount: tv.Amount, TaxWithheld: tv.TaxWithheld, Reason: tv.Reason, Kind: city.TxKind(tv.Kind),
		})
	}

	balances, vault, err := city.Replay(snap.Ledger.InitialSupply, txs)
	if err != nil {
		logger.Fatalf("replay: %v", err)
	}

	mismatches := 0
	for id, want := range snap.Ledger.Balances {
		if got := balances[id]; got != want {
			fmt.Printf("MISMATCH %s: replay=%d snapshot=%d\n", id, got, want)
			mismatches++
		}
	}
	if vault.VaultBalance != snap.Ledger.Vault {
		fmt.Printf("MISMATCH vault: replay=%d snapshot=%d\n", vault.VaultBalance, snap.Ledger.Vault)
		mismatches++
	}
	if vault.TotalSupply != snap.Ledger.TotalSupply {
		fmt.Printf("MISMATCH supply: replay=%d snapshot=%d\n", vault.TotalSupply, snap.Ledger.TotalSupply)
		mismatches++
	}

	if *verbose {
		for id, b := range balances {
			fmt.Printf("%s\t%d\n", id, b)
		}
	}

	if mismatches > 0 {
		logger.Fatalf("%d mismatches: the transaction log does not reconcile", mismatches)
	}
	fmt.Printf("ok: day %d, %d transactions, %d agents, supply %d\n",
		snap.Header.Day, len(txs), len(balances), vault.TotalSupply)
}
