package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/finbook/backend/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	periodsCollection      = "periods"
	accountsCollection     = "accounts"
	balancesCollection     = "balances"
	transactionsCollection = "transactions"
)

// FirestoreStore implements the Store interface using Firestore.
//
// Natural keys double as document IDs wherever a uniqueness invariant
// exists: periods are keyed by their (year, month) ID, balances by
// (account, period), and the estimated transaction of a period by its
// deterministic (user, period) ID. Firestore then enforces the invariants
// at the document level.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) Store {
	return &FirestoreStore{
		client: client,
	}
}

// Document shapes. Monetary amounts are persisted as decimal strings; the
// firestore codec has no native representation for decimal.Decimal and
// floats would reintroduce the rounding noise the core is built to avoid.

type periodDoc struct {
	Year  int
	Month int
	Label string
}

type accountDoc struct {
	UserID    string
	Name      string
	Category  string
	Currency  string
	Position  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

type balanceDoc struct {
	UserID    string
	AccountID string
	PeriodID  string
	Reported  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type transactionDoc struct {
	UserID      string
	Amount      string
	Flow        string
	PeriodID    string
	Category    string
	AccountID   string
	Tags        []string
	Note        string
	IsEstimated bool
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse stored amount %q: %w", s, err)
	}
	return d, nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func toTransactionDoc(tx *model.Transaction) *transactionDoc {
	return &transactionDoc{
		UserID:      tx.UserID,
		Amount:      tx.Amount.String(),
		Flow:        string(tx.Flow),
		PeriodID:    tx.PeriodID,
		Category:    tx.Category,
		AccountID:   tx.AccountID,
		Tags:        tx.Tags,
		Note:        tx.Note,
		IsEstimated: tx.IsEstimated,
		IsSystem:    tx.IsSystem,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
	}
}

func fromTransactionDoc(id string, doc *transactionDoc) (*model.Transaction, error) {
	amount, err := parseAmount(doc.Amount)
	if err != nil {
		return nil, err
	}
	return &model.Transaction{
		ID:          id,
		UserID:      doc.UserID,
		Amount:      amount,
		Flow:        model.FlowType(doc.Flow),
		PeriodID:    doc.PeriodID,
		Category:    doc.Category,
		AccountID:   doc.AccountID,
		Tags:        doc.Tags,
		Note:        doc.Note,
		IsEstimated: doc.IsEstimated,
		IsSystem:    doc.IsSystem,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}

// Period operations

func (s *FirestoreStore) GetPeriod(ctx context.Context, year int, month time.Month) (*model.Period, error) {
	id := model.PeriodID(year, month)
	doc, err := s.client.Collection(periodsCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", model.ErrPeriodNotFound, id)
		}
		return nil, fmt.Errorf("failed to get period: %w", err)
	}
	var pd periodDoc
	if err := doc.DataTo(&pd); err != nil {
		return nil, fmt.Errorf("failed to parse period: %w", err)
	}
	return &model.Period{ID: id, Year: pd.Year, Month: time.Month(pd.Month), Label: pd.Label}, nil
}

func (s *FirestoreStore) EnsurePeriod(ctx context.Context, year int, month time.Month) (*model.Period, error) {
	period := model.NewPeriod(year, month)
	// Create keeps periods append-only: an existing doc is left untouched.
	_, err := s.client.Collection(periodsCollection).Doc(period.ID).Create(ctx, &periodDoc{
		Year:  period.Year,
		Month: int(period.Month),
		Label: period.Label,
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return nil, fmt.Errorf("failed to ensure period: %w", err)
	}
	return period, nil
}

func (s *FirestoreStore) ListPeriods(ctx context.Context) ([]*model.Period, error) {
	iter := s.client.Collection(periodsCollection).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var result []*model.Period
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list periods: %w", err)
		}
		var pd periodDoc
		if err := doc.DataTo(&pd); err != nil {
			return nil, fmt.Errorf("failed to parse period: %w", err)
		}
		result = append(result, &model.Period{ID: doc.Ref.ID, Year: pd.Year, Month: time.Month(pd.Month), Label: pd.Label})
	}
	return result, nil
}

// Account operations

func (s *FirestoreStore) CreateAccount(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	_, err := s.client.Collection(accountsCollection).Doc(account.ID).Set(ctx, &accountDoc{
		UserID:    account.UserID,
		Name:      account.Name,
		Category:  string(account.Category),
		Currency:  account.Currency,
		Position:  account.Position,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetAccount(ctx context.Context, userID, accountID string) (*model.Account, error) {
	doc, err := s.client.Collection(accountsCollection).Doc(accountID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: account %s", model.ErrNotFound, accountID)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	var ad accountDoc
	if err := doc.DataTo(&ad); err != nil {
		return nil, fmt.Errorf("failed to parse account: %w", err)
	}
	if ad.UserID != userID {
		return nil, fmt.Errorf("%w: account %s", model.ErrNotFound, accountID)
	}
	return &model.Account{
		ID:        doc.Ref.ID,
		UserID:    ad.UserID,
		Name:      ad.Name,
		Category:  model.AccountCategory(ad.Category),
		Currency:  ad.Currency,
		Position:  ad.Position,
		CreatedAt: ad.CreatedAt,
		UpdatedAt: ad.UpdatedAt,
	}, nil
}

func (s *FirestoreStore) UpdateAccount(ctx context.Context, account *model.Account) error {
	if _, err := s.GetAccount(ctx, account.UserID, account.ID); err != nil {
		return err
	}
	return s.CreateAccount(ctx, account)
}

// DeleteAccount removes an account, cascades to its balances, and detaches
// the account from transactions that referenced it.
func (s *FirestoreStore) DeleteAccount(ctx context.Context, userID, accountID string) error {
	if _, err := s.GetAccount(ctx, userID, accountID); err != nil {
		return err
	}

	if _, err := s.client.Collection(accountsCollection).Doc(accountID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	iter := s.client.Collection(balancesCollection).Where("AccountID", "==", accountID).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to cascade account balances: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete balance %s: %w", doc.Ref.ID, err)
		}
	}

	txIter := s.client.Collection(transactionsCollection).Where("AccountID", "==", accountID).Documents(ctx)
	defer txIter.Stop()
	for {
		doc, err := txIter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to detach account transactions: %w", err)
		}
		if _, err := doc.Ref.Update(ctx, []firestore.Update{{Path: "AccountID", Value: ""}}); err != nil {
			return fmt.Errorf("failed to detach transaction %s: %w", doc.Ref.ID, err)
		}
	}
	return nil
}

func (s *FirestoreStore) ListAccounts(ctx context.Context, userID string) ([]*model.Account, error) {
	iter := s.client.Collection(accountsCollection).
		Where("UserID", "==", userID).
		OrderBy("Position", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var result []*model.Account
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list accounts: %w", err)
		}
		var ad accountDoc
		if err := doc.DataTo(&ad); err != nil {
			return nil, fmt.Errorf("failed to parse account: %w", err)
		}
		result = append(result, &model.Account{
			ID:        doc.Ref.ID,
			UserID:    ad.UserID,
			Name:      ad.Name,
			Category:  model.AccountCategory(ad.Category),
			Currency:  ad.Currency,
			Position:  ad.Position,
			CreatedAt: ad.CreatedAt,
			UpdatedAt: ad.UpdatedAt,
		})
	}
	return result, nil
}

func (s *FirestoreStore) ReorderAccounts(ctx context.Context, userID string, orderedIDs []string) error {
	// Validate the whole list first so an unknown ID cannot leave a
	// partially applied order behind.
	for _, id := range orderedIDs {
		if _, err := s.GetAccount(ctx, userID, id); err != nil {
			return err
		}
	}
	for pos, id := range orderedIDs {
		_, err := s.client.Collection(accountsCollection).Doc(id).Update(ctx, []firestore.Update{
			{Path: "Position", Value: int32(pos)},
			{Path: "UpdatedAt", Value: time.Now()},
		})
		if err != nil {
			return fmt.Errorf("failed to reorder account %s: %w", id, err)
		}
	}
	return nil
}

// Balance operations

// balanceDocID is the natural key of a balance row. Using it as the
// document ID makes the (account, period) uniqueness invariant hold without
// a separate constraint check.
func balanceDocID(accountID, periodID string) string {
	return accountID + "_" + periodID
}

func (s *FirestoreStore) UpsertBalance(ctx context.Context, balance *model.AccountBalance) error {
	id := balanceDocID(balance.AccountID, balance.PeriodID)
	balance.ID = id

	// A replacement keeps the original row's creation stamp.
	if existing, err := s.client.Collection(balancesCollection).Doc(id).Get(ctx); err == nil {
		var bd balanceDoc
		if err := existing.DataTo(&bd); err != nil {
			return fmt.Errorf("failed to parse balance: %w", err)
		}
		balance.CreatedAt = bd.CreatedAt
	} else if !isNotFound(err) {
		return fmt.Errorf("failed to get balance: %w", err)
	}

	_, err := s.client.Collection(balancesCollection).Doc(id).Set(ctx, &balanceDoc{
		UserID:    balance.UserID,
		AccountID: balance.AccountID,
		PeriodID:  balance.PeriodID,
		Reported:  balance.Reported.String(),
		CreatedAt: balance.CreatedAt,
		UpdatedAt: balance.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

func (s *FirestoreStore) DeleteBalance(ctx context.Context, userID, balanceID string) error {
	doc, err := s.client.Collection(balancesCollection).Doc(balanceID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: balance %s", model.ErrNotFound, balanceID)
		}
		return fmt.Errorf("failed to get balance: %w", err)
	}
	var bd balanceDoc
	if err := doc.DataTo(&bd); err != nil {
		return fmt.Errorf("failed to parse balance: %w", err)
	}
	if bd.UserID != userID {
		return fmt.Errorf("%w: balance %s", model.ErrNotFound, balanceID)
	}
	if _, err := doc.Ref.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete balance: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListBalances(ctx context.Context, userID, periodID string) ([]*model.AccountBalance, error) {
	query := s.client.Collection(balancesCollection).Where("UserID", "==", userID)
	if periodID != "" {
		query = query.Where("PeriodID", "==", periodID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var result []*model.AccountBalance
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list balances: %w", err)
		}
		var bd balanceDoc
		if err := doc.DataTo(&bd); err != nil {
			return nil, fmt.Errorf("failed to parse balance: %w", err)
		}
		reported, err := parseAmount(bd.Reported)
		if err != nil {
			return nil, err
		}
		result = append(result, &model.AccountBalance{
			ID:        doc.Ref.ID,
			UserID:    bd.UserID,
			AccountID: bd.AccountID,
			PeriodID:  bd.PeriodID,
			Reported:  reported,
			CreatedAt: bd.CreatedAt,
			UpdatedAt: bd.UpdatedAt,
		})
	}
	return result, nil
}

func (s *FirestoreStore) HasBalances(ctx context.Context, userID, periodID string) (bool, error) {
	iter := s.client.Collection(balancesCollection).
		Where("UserID", "==", userID).
		Where("PeriodID", "==", periodID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe balances: %w", err)
	}
	return true, nil
}

func (s *FirestoreStore) YearsWithBalances(ctx context.Context, userID string) ([]int, error) {
	balances, err := s.ListBalances(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	for _, balance := range balances {
		// Period IDs are "YYYY-MM"; the year prefix is all we need here.
		if len(balance.PeriodID) < 4 {
			continue
		}
		year, err := strconv.Atoi(balance.PeriodID[:4])
		if err != nil {
			continue
		}
		seen[year] = true
	}

	years := make([]int, 0, len(seen))
	for year := range seen {
		years = append(years, year)
	}
	sort.Ints(years)
	return years, nil
}

// Transaction operations

func (s *FirestoreStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	_, err := s.client.Collection(transactionsCollection).Doc(tx.ID).Set(ctx, toTransactionDoc(tx))
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetTransaction(ctx context.Context, userID, txID string) (*model.Transaction, error) {
	doc, err := s.client.Collection(transactionsCollection).Doc(txID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: transaction %s", model.ErrNotFound, txID)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	var td transactionDoc
	if err := doc.DataTo(&td); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	if td.UserID != userID {
		return nil, fmt.Errorf("%w: transaction %s", model.ErrNotFound, txID)
	}
	return fromTransactionDoc(doc.Ref.ID, &td)
}

func (s *FirestoreStore) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	if _, err := s.GetTransaction(ctx, tx.UserID, tx.ID); err != nil {
		return err
	}
	_, err := s.client.Collection(transactionsCollection).Doc(tx.ID).Set(ctx, toTransactionDoc(tx))
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (s *FirestoreStore) DeleteTransaction(ctx context.Context, userID, txID string) error {
	if _, err := s.GetTransaction(ctx, userID, txID); err != nil {
		return err
	}
	if _, err := s.client.Collection(transactionsCollection).Doc(txID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

// applyCursorPagination adds OrderBy + StartAfter + Limit to a query for
// cursor-based pagination. It fetches pageSize+1 docs so the caller can
// detect whether a next page exists.
func applyCursorPagination(query firestore.Query, pageSize int32, pageToken string) (firestore.Query, error) {
	query = query.OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return query, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.StartAfter(docID)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	query = query.Limit(int(pageSize) + 1) // +1 to detect next page
	return query, nil
}

func (s *FirestoreStore) ListTransactions(ctx context.Context, userID string, filter model.TransactionFilter, pageSize int32, pageToken string) ([]*model.Transaction, string, error) {
	query := s.client.Collection(transactionsCollection).Where("UserID", "==", userID)
	if filter.PeriodID != "" {
		query = query.Where("PeriodID", "==", filter.PeriodID)
	}
	if filter.Flow != "" {
		query = query.Where("Flow", "==", string(filter.Flow))
	}
	if filter.Category != "" {
		query = query.Where("Category", "==", filter.Category)
	}
	if filter.AccountID != "" {
		query = query.Where("AccountID", "==", filter.AccountID)
	}
	if filter.Tag != "" {
		query = query.Where("Tags", "array-contains", filter.Tag)
	}
	if filter.IsEstimated != nil {
		query = query.Where("IsEstimated", "==", *filter.IsEstimated)
	}

	query, err := applyCursorPagination(query, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var result []*model.Transaction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to list transactions: %w", err)
		}
		var td transactionDoc
		if err := doc.DataTo(&td); err != nil {
			return nil, "", fmt.Errorf("failed to parse transaction: %w", err)
		}
		tx, err := fromTransactionDoc(doc.Ref.ID, &td)
		if err != nil {
			return nil, "", err
		}
		result = append(result, tx)
	}

	var nextToken string
	if int32(len(result)) > pageSize {
		result = result[:pageSize]
		nextToken = EncodePageToken(result[len(result)-1].ID)
	}
	return result, nextToken, nil
}

func (s *FirestoreStore) BatchCreateTransactions(ctx context.Context, txs []*model.Transaction) error {
	writer := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(txs))
	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		ref := s.client.Collection(transactionsCollection).Doc(tx.ID)
		job, err := writer.Set(ref, toTransactionDoc(tx))
		if err != nil {
			return fmt.Errorf("failed to enqueue transaction %s: %w", tx.ID, err)
		}
		jobs = append(jobs, job)
	}
	writer.End()

	// Set only reports enqueue validation; the write outcome arrives per
	// job. A rejected write must fail the whole batch.
	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to create transaction %s: %w", txs[i].ID, err)
		}
	}
	return nil
}

func (s *FirestoreStore) BatchDeleteTransactions(ctx context.Context, userID string, txIDs []string) error {
	for _, id := range txIDs {
		err := s.DeleteTransaction(ctx, userID, id)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *FirestoreStore) SumFlows(ctx context.Context, userID, periodID string) (*model.FlowTotals, error) {
	iter := s.client.Collection(transactionsCollection).
		Where("UserID", "==", userID).
		Where("PeriodID", "==", periodID).
		Documents(ctx)
	defer iter.Stop()

	totals := &model.FlowTotals{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to sum flows: %w", err)
		}
		var td transactionDoc
		if err := doc.DataTo(&td); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		tx, err := fromTransactionDoc(doc.Ref.ID, &td)
		if err != nil {
			return nil, err
		}
		accumulateFlow(totals, tx)
	}
	return totals, nil
}

// Estimated-transaction singleton

func (s *FirestoreStore) GetEstimatedTransaction(ctx context.Context, userID, periodID string) (*model.Transaction, error) {
	return s.GetTransaction(ctx, userID, model.EstimatedTransactionID(userID, periodID))
}

// ReplaceEstimatedTransaction runs the delete-then-insert protocol inside a
// Firestore transaction against the deterministic per-(user, period)
// document, so concurrent estimates serialize instead of duplicating.
func (s *FirestoreStore) ReplaceEstimatedTransaction(ctx context.Context, userID, periodID string, tx *model.Transaction) error {
	tx.ID = model.EstimatedTransactionID(userID, periodID)
	ref := s.client.Collection(transactionsCollection).Doc(tx.ID)
	doc := toTransactionDoc(tx)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		if err := t.Delete(ref); err != nil {
			return err
		}
		return t.Set(ref, doc)
	})
	if err != nil {
		return fmt.Errorf("failed to replace estimated transaction: %w", err)
	}
	return nil
}

func (s *FirestoreStore) DeleteEstimatedTransaction(ctx context.Context, userID, periodID string) error {
	id := model.EstimatedTransactionID(userID, periodID)
	if _, err := s.client.Collection(transactionsCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete estimated transaction: %w", err)
	}
	return nil
}
