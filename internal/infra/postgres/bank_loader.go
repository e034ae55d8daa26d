package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizduel-service/internal/domain"
)

// BankLoader loads question-bank JSONB from Postgres.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBank(ctx context.Context, bankID string) (domain.QuestionBank, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_banks WHERE id=$1`, bankID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionBank{}, domain.ErrQuestionBankNotFound
	}
	if err != nil {
		return domain.QuestionBank{}, fmt.Errorf("load bank: %w", err)
	}
	var bank domain.QuestionBank
	if err := json.Unmarshal(raw, &bank); err != nil {
		return domain.QuestionBank{}, fmt.Errorf("unmarshal bank: %w", err)
	}
	return bank, nil
}
