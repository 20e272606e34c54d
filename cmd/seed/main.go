package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	repo "github.com/joseph-ayodele/statements-ledger/internal/repository"
)

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func main() {
	var (
		fullName      = flag.String("name", "测试用户", "account owner's full name")
		accountName   = flag.String("account-name", "我的招行工资卡", "account display name")
		accountNumber = flag.String("account-number", "622588******1234", "account number; an existing account with it is reused")
		accountType   = flag.String("account-type", "储蓄卡", "account type")
		institution   = flag.String("institution", "招商银行", "issuing institution")
	)
	flag.Parse()

	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := repo.OpenFromConfig(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	accounts := repo.NewAccountRepository(db, logger)

	existing, err := accounts.GetByNumber(ctx, *accountNumber)
	switch {
	case err == nil:
		fmt.Printf("Account already exists: %s (ID: %s)\n", existing.AccountName, existing.ID)
		fmt.Printf("Person ID: %s | Account ID: %s\n", existing.OwnerID, existing.ID)
		return
	case !errors.Is(err, common.ErrNotFound):
		logger.Error("failed to look up account", "account_number", *accountNumber, "error", err)
		os.Exit(1)
	}

	person := &entity.Person{FullName: *fullName}
	if err := accounts.CreatePerson(ctx, person); err != nil {
		logger.Error("failed to create person", "error", err)
		os.Exit(1)
	}
	account := &entity.Account{
		OwnerID:       person.ID,
		AccountName:   *accountName,
		AccountNumber: *accountNumber,
		AccountType:   optional(*accountType),
		Institution:   optional(*institution),
	}
	if err := accounts.CreateAccount(ctx, account); err != nil {
		logger.Error("failed to create account", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Created person %s and account %s\n", person.FullName, account.AccountName)
	fmt.Printf("Person ID: %s | Account ID: %s\n", person.ID, account.ID)
}
