package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	sharedApplication "github.com/felixgeelhaar/subtrack/internal/shared/application"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) ScheduleReminder(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

type fixture struct {
	repo   *persistence.InMemorySubscriptionRepository
	outbox *outbox.InMemoryRepository
	uow    sharedApplication.UnitOfWork
}

func newFixture() *fixture {
	return &fixture{
		repo:   persistence.NewInMemorySubscriptionRepository(),
		outbox: outbox.NewInMemoryRepository(),
		uow:    sharedApplication.NoopUnitOfWork{},
	}
}

func (f *fixture) create(t *testing.T, owner string, fields subscription.Fields) *subscription.Subscription {
	t.Helper()
	handler := NewCreateSubscriptionHandler(f.repo, f.outbox, f.uow, nil, CreateConfig{Now: func() time.Time { return fixedNow }}, nil)
	result, err := handler.Handle(context.Background(), CreateSubscriptionCommand{
		Actor:  Actor{UserID: owner},
		Fields: fields,
	})
	require.NoError(t, err)
	return result.Subscription
}

func (f *fixture) routingKeys() []string {
	var keys []string
	for _, msg := range f.outbox.Messages() {
		keys = append(keys, msg.RoutingKey)
	}
	return keys
}

func TestCreateSubscription_InlineNotify(t *testing.T) {
	f := newFixture()
	scheduler := new(mockScheduler)
	scheduler.On("ScheduleReminder", mock.Anything, mock.AnythingOfType("uuid.UUID")).Return("run-123", nil).Once()

	handler := NewCreateSubscriptionHandler(f.repo, f.outbox, f.uow, scheduler, CreateConfig{InlineDispatch: true}, nil)
	result, err := handler.Handle(context.Background(), CreateSubscriptionCommand{
		Actor:  Actor{UserID: "u1", CorrelationID: "corr-1"},
		Fields: subscription.Fields{Plan: "pro"},
	})

	require.NoError(t, err)
	assert.Equal(t, "u1", result.Subscription.UserID())
	assert.Equal(t, "run-123", result.WorkflowRunID)
	scheduler.AssertExpectations(t)

	stored, err := f.repo.FindByID(context.Background(), result.Subscription.ID())
	require.NoError(t, err)
	assert.Equal(t, "pro", stored.Plan())

	msgs := f.outbox.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, subscription.RoutingKeyCreated, msgs[0].RoutingKey)
	assert.Nil(t, msgs[0].PublishedAt, "broadcast is left to the processor")
	assert.Equal(t, subscription.RoutingKeyReminderRequested, msgs[1].RoutingKey)
	assert.NotNil(t, msgs[1].PublishedAt, "inline notify marks the reminder published")
}

func TestCreateSubscription_NotifyFailureStaysQueued(t *testing.T) {
	f := newFixture()
	scheduler := new(mockScheduler)
	scheduler.On("ScheduleReminder", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	handler := NewCreateSubscriptionHandler(f.repo, f.outbox, f.uow, scheduler, CreateConfig{InlineDispatch: true}, nil)
	result, err := handler.Handle(context.Background(), CreateSubscriptionCommand{
		Actor:  Actor{UserID: "u1"},
		Fields: subscription.Fields{Plan: "pro"},
	})

	require.NoError(t, err)
	assert.Empty(t, result.WorkflowRunID)

	pending, err := f.outbox.GetUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestCreateSubscription_InlineDisabled(t *testing.T) {
	f := newFixture()
	scheduler := new(mockScheduler)

	handler := NewCreateSubscriptionHandler(f.repo, f.outbox, f.uow, scheduler, CreateConfig{InlineDispatch: false}, nil)
	result, err := handler.Handle(context.Background(), CreateSubscriptionCommand{
		Actor:  Actor{UserID: "u1"},
		Fields: subscription.Fields{},
	})

	require.NoError(t, err)
	assert.Empty(t, result.WorkflowRunID)
	scheduler.AssertNotCalled(t, "ScheduleReminder", mock.Anything, mock.Anything)
}

func TestCreateSubscription_ValidationFailure(t *testing.T) {
	f := newFixture()
	handler := NewCreateSubscriptionHandler(f.repo, f.outbox, f.uow, nil, CreateConfig{}, nil)

	_, err := handler.Handle(context.Background(), CreateSubscriptionCommand{
		Actor:  Actor{UserID: "u1"},
		Fields: subscription.Fields{Price: -3},
	})

	assert.ErrorIs(t, err, subscription.ErrValidation)
	assert.Empty(t, f.outbox.Messages())

	all, err := f.repo.Find(context.Background(), subscription.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdateSubscription(t *testing.T) {
	f := newFixture()
	s := f.create(t, "u1", subscription.Fields{Name: "Netflix", Price: 9.99})
	handler := NewUpdateSubscriptionHandler(f.repo, f.uow)
	price := 12.99

	t.Run("owner updates", func(t *testing.T) {
		updated, err := handler.Handle(context.Background(), UpdateSubscriptionCommand{
			Actor:          Actor{UserID: "u1"},
			SubscriptionID: s.ID(),
			Patch:          subscription.Patch{Price: &price},
		})
		require.NoError(t, err)
		assert.Equal(t, 12.99, updated.Price())
		assert.Equal(t, "Netflix", updated.Name())

		stored, err := f.repo.FindByID(context.Background(), s.ID())
		require.NoError(t, err)
		assert.Equal(t, 12.99, stored.Price())
	})

	t.Run("empty patch returns record", func(t *testing.T) {
		updated, err := handler.Handle(context.Background(), UpdateSubscriptionCommand{
			Actor:          Actor{UserID: "u1"},
			SubscriptionID: s.ID(),
		})
		require.NoError(t, err)
		assert.Equal(t, s.ID(), updated.ID())
	})

	t.Run("invalid patch", func(t *testing.T) {
		bad := "weird"
		_, err := handler.Handle(context.Background(), UpdateSubscriptionCommand{
			Actor:          Actor{UserID: "u1"},
			SubscriptionID: s.ID(),
			Patch:          subscription.Patch{Currency: &bad},
		})
		assert.ErrorIs(t, err, subscription.ErrValidation)
	})
}

func TestCancelSubscription_Twice(t *testing.T) {
	f := newFixture()
	s := f.create(t, "u1", subscription.Fields{})
	handler := NewCancelSubscriptionHandler(f.repo, f.outbox, f.uow)
	cmd := CancelSubscriptionCommand{Actor: Actor{UserID: "u1"}, SubscriptionID: s.ID()}

	first, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, first.Status())

	second, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, second.Status())

	assert.Equal(t, []string{
		subscription.RoutingKeyCreated,
		subscription.RoutingKeyReminderRequested,
		subscription.RoutingKeyCancelled,
	}, f.routingKeys())
}

func TestDeleteSubscription(t *testing.T) {
	f := newFixture()
	s := f.create(t, "u1", subscription.Fields{})
	handler := NewDeleteSubscriptionHandler(f.repo, f.outbox, f.uow)

	require.NoError(t, handler.Handle(context.Background(), DeleteSubscriptionCommand{
		Actor:          Actor{UserID: "u1"},
		SubscriptionID: s.ID(),
	}))

	_, err := f.repo.FindByID(context.Background(), s.ID())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	assert.Contains(t, f.routingKeys(), subscription.RoutingKeyDeleted)
}

func TestMutations_NotFoundAndPermission(t *testing.T) {
	f := newFixture()
	s := f.create(t, "u1", subscription.Fields{})
	name := "renamed"

	update := NewUpdateSubscriptionHandler(f.repo, f.uow)
	cancel := NewCancelSubscriptionHandler(f.repo, f.outbox, f.uow)
	del := NewDeleteSubscriptionHandler(f.repo, f.outbox, f.uow)

	ops := map[string]func(caller string, id uuid.UUID) error{
		"update": func(caller string, id uuid.UUID) error {
			_, err := update.Handle(context.Background(), UpdateSubscriptionCommand{
				Actor: Actor{UserID: caller}, SubscriptionID: id, Patch: subscription.Patch{Name: &name},
			})
			return err
		},
		"cancel": func(caller string, id uuid.UUID) error {
			_, err := cancel.Handle(context.Background(), CancelSubscriptionCommand{Actor: Actor{UserID: caller}, SubscriptionID: id})
			return err
		},
		"delete": func(caller string, id uuid.UUID) error {
			return del.Handle(context.Background(), DeleteSubscriptionCommand{Actor: Actor{UserID: caller}, SubscriptionID: id})
		},
	}

	for label, op := range ops {
		t.Run(label, func(t *testing.T) {
			assert.ErrorIs(t, op("u1", uuid.New()), subscription.ErrSubscriptionNotFound)
			assert.ErrorIs(t, op("u2", s.ID()), subscription.ErrPermissionDenied)
		})
	}

	stored, err := f.repo.FindByID(context.Background(), s.ID())
	require.NoError(t, err)
	assert.True(t, stored.IsActive())
	assert.Equal(t, "u1", stored.UserID())
}
