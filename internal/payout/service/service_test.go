package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auditdomain "github.com/studioordo/backoffice/internal/audit/domain"
	auditservice "github.com/studioordo/backoffice/internal/audit/service"
	"github.com/studioordo/backoffice/internal/clock"
	ledgerdomain "github.com/studioordo/backoffice/internal/ledger/domain"
	paymentdomain "github.com/studioordo/backoffice/internal/payment/domain"
	payoutdomain "github.com/studioordo/backoffice/internal/payout/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	calls []paymentdomain.TransferRequest
	errs  map[string]error // keyed by idempotency key
	next  int
}

func (f *fakeGateway) CreateTransfer(ctx context.Context, req paymentdomain.TransferRequest) (*paymentdomain.Transfer, error) {
	f.calls = append(f.calls, req)
	if err, ok := f.errs[req.IdempotencyKey]; ok {
		return nil, err
	}
	f.next++
	return &paymentdomain.Transfer{ID: fmt.Sprintf("tr_%03d", f.next)}, nil
}

type fixture struct {
	svc     payoutdomain.Service
	db      *gorm.DB
	node    *snowflake.Node
	gateway *fakeGateway
	actorID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.LedgerEntry{},
		&payoutdomain.PayoutExecution{},
		&payoutdomain.ConnectAccount{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	gateway := &fakeGateway{errs: map[string]error{}}
	auditSvc := auditservice.NewService(auditservice.Params{
		Log:   zap.NewNop(),
		GenID: node,
	})

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(baseTime),
		Gateway:  gateway,
		AuditSvc: auditSvc,
	})
	return &fixture{svc: svc, db: db, node: node, gateway: gateway, actorID: node.Generate()}
}

type entryOpts struct {
	status      ledgerdomain.EntryStatus
	entryType   ledgerdomain.EntryType
	beneficiary *snowflake.ID
	amountCents int64
}

func (f *fixture) seedEntry(t *testing.T, opts entryOpts) snowflake.ID {
	t.Helper()

	if opts.entryType == "" {
		opts.entryType = ledgerdomain.EntryTypeProviderPayout
	}
	if opts.amountCents == 0 {
		opts.amountCents = 7000
	}
	entry := ledgerdomain.LedgerEntry{
		ID:                f.node.Generate(),
		DealID:            f.node.Generate(),
		EntryType:         opts.entryType,
		BeneficiaryUserID: opts.beneficiary,
		AmountCents:       opts.amountCents,
		Currency:          "USD",
		Status:            opts.status,
		EarnedAt:          baseTime,
		CreatedAt:         baseTime,
		UpdatedAt:         baseTime,
	}
	require.NoError(t, f.db.Create(&entry).Error)
	return entry.ID
}

func (f *fixture) seedOnboardedBeneficiary(t *testing.T) snowflake.ID {
	t.Helper()

	userID := f.node.Generate()
	require.NoError(t, f.db.Create(&payoutdomain.ConnectAccount{
		UserID:    userID,
		Provider:  payoutdomain.ProviderStripe,
		AccountID: fmt.Sprintf("acct_%s", userID),
		Status:    payoutdomain.ConnectAccountStatusComplete,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}).Error)
	return userID
}

func (f *fixture) entry(t *testing.T, id snowflake.ID) ledgerdomain.LedgerEntry {
	t.Helper()
	var entry ledgerdomain.LedgerEntry
	require.NoError(t, f.db.First(&entry, id).Error)
	return entry
}

func (f *fixture) execution(t *testing.T, entryID snowflake.ID) payoutdomain.PayoutExecution {
	t.Helper()
	var exec payoutdomain.PayoutExecution
	require.NoError(t, f.db.
		Where("ledger_entry_id = ? AND provider = ?", entryID, payoutdomain.ProviderStripe).
		First(&exec).Error)
	return exec
}

func TestExecuteRequiresConfirm(t *testing.T) {
	f := newFixture(t)
	userID := f.seedOnboardedBeneficiary(t)
	entryID := f.seedEntry(t, entryOpts{status: ledgerdomain.EntryStatusApproved, beneficiary: &userID})

	_, err := f.svc.ExecuteApproved(context.Background(), []snowflake.ID{entryID}, f.actorID, "req-1", false)
	assert.ErrorIs(t, err, payoutdomain.ErrConfirmRequired)

	assert.Empty(t, f.gateway.calls)
	assert.Equal(t, ledgerdomain.EntryStatusApproved, f.entry(t, entryID).Status)

	var executions int64
	require.NoError(t, f.db.Model(&payoutdomain.PayoutExecution{}).Count(&executions).Error)
	assert.Zero(t, executions)
}

func TestExecutePaysApprovedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.seedOnboardedBeneficiary(t)
	entryID := f.seedEntry(t, entryOpts{status: ledgerdomain.EntryStatusApproved, beneficiary: &userID})

	summary, err := f.svc.ExecuteApproved(ctx, []snowflake.ID{entryID}, f.actorID, "req-1", true)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.Summary{Attempted: 1, Paid: 1}, summary)

	require.Len(t, f.gateway.calls, 1)
	call := f.gateway.calls[0]
	assert.Equal(t, int64(7000), call.AmountCents)
	assert.Equal(t, "USD", call.Currency)
	assert.Equal(t, fmt.Sprintf("acct_%s", userID), call.DestinationAccountID)
	assert.Equal(t, fmt.Sprintf("ledger_payout_%s", entryID), call.IdempotencyKey)
	assert.Equal(t, entryID.String(), call.Metadata["ledger_entry_id"])

	entry := f.entry(t, entryID)
	assert.Equal(t, ledgerdomain.EntryStatusPaid, entry.Status)
	require.NotNil(t, entry.PaidAt)

	exec := f.execution(t, entryID)
	assert.Equal(t, payoutdomain.ExecutionStatusSucceeded, exec.Status)
	require.NotNil(t, exec.TransferID)
	assert.Equal(t, "tr_001", *exec.TransferID)
	assert.Equal(t, 1, exec.AttemptCount)

	var logs []auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "ledger.payout.execute").Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "req-1", logs[0].RequestID)
}

func TestExecuteSkipsIneligibleEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.seedOnboardedBeneficiary(t)

	earned := f.seedEntry(t, entryOpts{status: ledgerdomain.EntryStatusEarned, beneficiary: &userID})
	paid := f.seedEntry(t, entryOpts{status: ledgerdomain.EntryStatusPaid, beneficiary: &userID})
	void := f.seedEntry(t, entryOpts{status: ledgerdomain.EntryStatusVoid, beneficiary: &userID})
	platform := f.seedEntry(t, entryOpts{
		status:    ledgerdomain.EntryStatusApproved,
		entryType: ledgerdomain.EntryTypePlatformRevenue,
	})
	missing := f.node.Generate()

	summary, err := f.svc.ExecuteApproved(ctx,
		[]snowflake.ID{earned, paid, void, platform, missing}, f.actorID, "req-1", true)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.Summary{Skipped: 5}, summary)
	assert.Empty(t, f.gateway.calls)
}

func TestExecuteFailsWhenBeneficiaryMissing(t *testing.T) {
	f := newFixture(t)
	entryID := f.seedEntry(t, entryOpts{status: ledgerdomain.EntryStatusApproved})

	summary, err := f.svc.ExecuteApproved(context.Background(), []snowflake.ID{entryID}, f.actorID, "req-1", true)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.Summary{Failed: 1}, summary)
	assert.Empty(t, f.gateway.calls)

	exec := f.execution(t, entryID)
	assert.Equal(t, payoutdomain.ExecutionStatusFailed, exec.Status)
	require.NotNil(t, exec.LastError)
	assert.Equal(t, "beneficiary_missing", *exec.LastError)
}

func TestExecuteFailsWhenOnboardingIncomplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := f.node.Generate()
	require.NoError(t, f.db.Create(&payoutdomain.ConnectAccount{
		UserID:    userID,
		Provider:  payoutdomain.ProviderStripe,
		AccountID: "acct_pending",
		Status:    payoutdomain.ConnectAccountStatusPending,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}).Error)
	entryID := f.seedEntry(t, entryOpts{status: ledgerdomain.EntryStatusApproved, beneficiary: &userID})

	summary, err := f.svc.ExecuteApproved(ctx, []snowflake.ID{entryID}, f.actorID, "req-1", true)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.Summary{Failed: 1}, summary)
	assert.Empty(t, f.gateway.calls)

	exec := f.execution(t, entryID)
	require.NotNil(t, exec.LastError)
	assert.Equal(t, "connect_onboarding_incomplete", *exec.LastError)
	assert.Equal(t, ledgerdomain.EntryStatusApproved, f.entry(t, entryID).Status)
}

func TestExecuteRepairsSucceededExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.seedOnboardedBeneficiary(t)
	entryID := f.seedEntry(t, entryOpts{status: ledgerdomain.EntryStatusApproved, beneficiary: &userID})

	// Transfer completed in a prior run but the process died before the
	// ledger entry was flipped to PAID.
	transferID := "tr_prior"
	require.NoError(t, f.db.Create(&payoutdomain.PayoutExecution{
		ID:              f.node.Generate(),
		LedgerEntryID:   entryID,
		Provider:        payoutdomain.ProviderStripe,
		IdempotencyKey:  fmt.Sprintf("ledger_payout_%s", entryID),
		TransferID:      &transferID,
		Status:          payoutdomain.ExecutionStatusSucceeded,
		AttemptCount:    1,
		LastAttemptedAt: baseTime,
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
	}).Error)

	summary, err := f.svc.ExecuteApproved(ctx, []snowflake.ID{entryID}, f.actorID, "req-1", true)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.Summary{Skipped: 1}, summary)

	// No second transfer; the entry is repaired from the execution record.
	assert.Empty(t, f.gateway.calls)
	assert.Equal(t, ledgerdomain.EntryStatusPaid, f.entry(t, entryID).Status)
}

func TestExecuteGatewayFailureContinuesBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.seedOnboardedBeneficiary(t)

	failing := f.seedEntry(t, entryOpts{status: ledgerdomain.EntryStatusApproved, beneficiary: &userID})
	healthy := f.seedEntry(t, entryOpts{status: ledgerdomain.EntryStatusApproved, beneficiary: &userID, amountCents: 2000})
	f.gateway.errs[fmt.Sprintf("ledger_payout_%s", failing)] = fmt.Errorf("stripe: balance_insufficient")

	summary, err := f.svc.ExecuteApproved(ctx, []snowflake.ID{failing, healthy}, f.actorID, "req-1", true)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.Summary{Attempted: 2, Paid: 1, Failed: 1}, summary)
	assert.Len(t, f.gateway.calls, 2)

	assert.Equal(t, ledgerdomain.EntryStatusApproved, f.entry(t, failing).Status)
	assert.Equal(t, ledgerdomain.EntryStatusPaid, f.entry(t, healthy).Status)

	exec := f.execution(t, failing)
	assert.Equal(t, payoutdomain.ExecutionStatusFailed, exec.Status)
	require.NotNil(t, exec.LastError)
	assert.Contains(t, *exec.LastError, "balance_insufficient")

	var logs []auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "ledger.payout.failed").Find(&logs).Error)
	assert.Len(t, logs, 1)
}

func TestExecuteRetryAfterFailureReusesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.seedOnboardedBeneficiary(t)
	entryID := f.seedEntry(t, entryOpts{status: ledgerdomain.EntryStatusApproved, beneficiary: &userID})

	key := fmt.Sprintf("ledger_payout_%s", entryID)
	f.gateway.errs[key] = fmt.Errorf("stripe: api_connection_error")

	summary, err := f.svc.ExecuteApproved(ctx, []snowflake.ID{entryID}, f.actorID, "req-1", true)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.Summary{Attempted: 1, Failed: 1}, summary)

	delete(f.gateway.errs, key)
	summary, err = f.svc.ExecuteApproved(ctx, []snowflake.ID{entryID}, f.actorID, "req-2", true)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.Summary{Attempted: 1, Paid: 1}, summary)

	require.Len(t, f.gateway.calls, 2)
	assert.Equal(t, key, f.gateway.calls[0].IdempotencyKey)
	assert.Equal(t, key, f.gateway.calls[1].IdempotencyKey)

	exec := f.execution(t, entryID)
	assert.Equal(t, payoutdomain.ExecutionStatusSucceeded, exec.Status)
	assert.Equal(t, 2, exec.AttemptCount)
	assert.Nil(t, exec.LastError)
}
