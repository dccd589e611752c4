package main

import "github.com/erp/ledger/cmd/ledgerctl/cmd"

func main() {
	cmd.Execute()
}
