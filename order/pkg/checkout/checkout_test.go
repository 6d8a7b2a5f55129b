package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartResponse "github.com/Alturino/makelocal/cart/pkg/response"
	"github.com/Alturino/makelocal/internal/api"
	"github.com/Alturino/makelocal/internal/config"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/order/pkg/request"
	"github.com/Alturino/makelocal/order/pkg/response"
)

type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) EnsureValid(context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

type fakeCart struct {
	mu      sync.Mutex
	cart    cartResponse.Cart
	cleared bool
}

func (f *fakeCart) Cart() cartResponse.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cart.Clone()
}

func (f *fakeCart) ClearSubmitted(_ context.Context, submitted cartResponse.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	sent := map[string]bool{}
	for _, item := range submitted.Items {
		sent[item.ID] = true
	}
	kept := []cartResponse.CartItem{}
	for _, item := range f.cart.Items {
		if !sent[item.ID] {
			kept = append(kept, item)
		}
	}
	f.cart.Items = kept
	return nil
}

type recorded struct {
	mu        sync.Mutex
	attempts  []Attempt
	published []Attempt
}

func (r *recorded) RecordAttempt(_ context.Context, a Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *recorded) PublishCheckedOut(_ context.Context, a Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, a)
	return errors.New("broker down")
}

func cartWith(n int) cartResponse.Cart {
	cart := cartResponse.Cart{}
	for i := range n {
		cart.Items = append(cart.Items, cartResponse.CartItem{
			ID:             fmt.Sprintf("i%d", i),
			ProductID:      fmt.Sprintf("p%d", i),
			ProductName:    fmt.Sprintf("Product %d", i),
			BasePrice:      decimal.NewFromInt(10),
			Customizations: &cartResponse.Customizations{Text: "hi"},
			Quantity:       1,
		})
	}
	return cart
}

func newDraftServer(t *testing.T, handler func(body request.CreateDraftBatch) (int, string)) *api.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/product-order-draft", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body := request.CreateDraftBatch{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		status, payload := handler(body)
		w.WriteHeader(status)
		fmt.Fprint(w, payload)
	}))
	t.Cleanup(srv.Close)
	client, err := api.NewClient(config.Api{BaseURL: srv.URL, Timeout: time.Second}, nil)
	require.NoError(t, err)
	return client
}

func TestCustomizationsToProductParameters(t *testing.T) {
	testCases := []struct {
		name     string
		input    *cartResponse.Customizations
		expected []request.ProductParameter
	}{
		{name: "nil maps to nothing", input: nil, expected: []request.ProductParameter{}},
		{name: "empty maps to nothing", input: &cartResponse.Customizations{}, expected: []request.ProductParameter{}},
		{
			name:  "text only",
			input: &cartResponse.Customizations{Text: "Hello"},
			expected: []request.ProductParameter{
				{Name: "text", Type: "text", Value: "Hello"},
			},
		},
		{
			name:  "text and color",
			input: &cartResponse.Customizations{Text: "Hello", ColorID: "red"},
			expected: []request.ProductParameter{
				{Name: "text", Type: "text", Value: "Hello"},
				{Name: "color", Type: "color", Value: "red"},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, CustomizationsToProductParameters(tc.input))
		})
	}
}

func TestCartToCreateDraftBatchRequest(t *testing.T) {
	batch := CartToCreateDraftBatchRequest(cartWith(2))
	require.Len(t, batch.Items, 2)
	assert.Equal(t, "p1", batch.Items[1].ProductID)
	assert.Equal(t, 1, batch.Items[1].Quantity)
	assert.Equal(t, "standard", batch.Items[0].Urgency)
	assert.Equal(t, "EUR", batch.Items[0].Currency)
	assert.Len(t, batch.Items[0].ProductParameters, 1)
}

func TestCreateDraftSendsEmptyProductParameters(t *testing.T) {
	item := cartWith(1).Items[0]
	item.Customizations = &cartResponse.Customizations{}
	raw, err := json.Marshal(CartItemToCreateDraftRequest(item))
	require.NoError(t, err)
	assert.JSONEq(t, `{"productId":"p0","quantity":1,"urgency":"standard","currency":"EUR","productParameters":[]}`, string(raw))
}

func TestValidateCartForCheckout(t *testing.T) {
	assert.ErrorIs(t, ValidateCartForCheckout(cartResponse.Cart{}), inErrors.ErrEmptyCheckout)

	cart := cartWith(2)
	cart.Items[1].Customizations = nil
	err := ValidateCartForCheckout(cart)
	var verr *inErrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, inErrors.CodeMissingCustomization, verr.Code)
	assert.Equal(t, `Item "Product 1" is missing customizations.`, verr.Message)

	assert.NoError(t, ValidateCartForCheckout(cartWith(1)))
}

func TestCreateOrderDraft(t *testing.T) {
	t.Run("given no token anywhere should fail before calling the api", func(t *testing.T) {
		tokens := &staticTokens{err: errors.New("offline")}
		d := NewDrafter(nil, tokens)
		_, err := d.CreateOrderDraft(context.Background(), cartWith(1))
		require.ErrorIs(t, err, inErrors.ErrNoSessionToken)
		assert.Equal(t, 1, tokens.calls)
	})

	t.Run("given cart token should not ask the session manager", func(t *testing.T) {
		client := newDraftServer(t, func(body request.CreateDraftBatch) (int, string) {
			return http.StatusOK, `{"results":[{"draftOrderId":"d1","productId":"p0"}],"redirectUrl":"https://x"}`
		})
		tokens := &staticTokens{token: "other"}
		cart := cartWith(1)
		cart.SessionToken = "tok"

		resp, err := NewDrafter(client, tokens).CreateOrderDraft(context.Background(), cart)
		require.NoError(t, err)
		assert.Equal(t, []string{"d1"}, resp.DraftOrderIDs())
		assert.Equal(t, 0, tokens.calls)
	})

	t.Run("given more than fifty lines should reject the batch", func(t *testing.T) {
		cart := cartWith(51)
		cart.SessionToken = "tok"
		_, err := NewDrafter(nil, nil).CreateOrderDraft(context.Background(), cart)
		require.ErrorIs(t, err, inErrors.ErrTooManyDraftItems)
	})

	t.Run("given every line failing should return aggregate error", func(t *testing.T) {
		client := newDraftServer(t, func(body request.CreateDraftBatch) (int, string) {
			return http.StatusOK, `{"results":[],"errors":[{"productId":"p0","error":"out of stock"},{"productId":"p1","error":"nope"}]}`
		})
		_, err := NewDrafter(client, &staticTokens{token: "tok"}).CreateOrderDraft(context.Background(), cartWith(2))
		var all *AllDraftsFailedError
		require.ErrorAs(t, err, &all)
		assert.Equal(t, "Failed to create draft orders: out of stock", err.Error())
	})
}

func TestFlowSubmit(t *testing.T) {
	t.Run("given partial failure should succeed clear cart and keep the error", func(t *testing.T) {
		client := newDraftServer(t, func(body request.CreateDraftBatch) (int, string) {
			assert.Len(t, body.Items, 3)
			return http.StatusOK, `{"results":[{"draftOrderId":"d1","productId":"p0"},{"draftOrderId":"d2","productId":"p2"}],` +
				`"errors":[{"productId":"p1","error":"unavailable"}],"redirectUrl":"https://makelocal.example/checkout"}`
		})
		cart := &fakeCart{cart: cartWith(3)}
		rec := &recorded{}
		flow := NewFlow("cart-1", cart, NewDrafter(client, &staticTokens{token: "tok"}),
			WithRecorder(rec), WithPublisher(rec))

		status, err := flow.Submit(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateSuccess, status.State)
		assert.Equal(t, []string{"d1", "d2"}, status.DraftOrderIDs)
		assert.Equal(t, []response.DraftError{{ProductID: "p1", Error: "unavailable"}}, status.PartialFailures)
		assert.Equal(t, "https://makelocal.example/checkout", status.RedirectURL)
		assert.True(t, cart.cleared)
		assert.Empty(t, cart.Cart().Items)

		require.Len(t, rec.attempts, 1)
		assert.Equal(t, StateSuccess, rec.attempts[0].State)
		assert.Equal(t, 3, rec.attempts[0].TotalItems)
		assert.True(t, decimal.NewFromInt(30).Equal(rec.attempts[0].TotalPrice))
		assert.Len(t, rec.published, 1)
	})

	t.Run("given every line failing should end in error and keep the cart", func(t *testing.T) {
		client := newDraftServer(t, func(body request.CreateDraftBatch) (int, string) {
			return http.StatusOK, `{"results":[],"errors":[{"productId":"p0","error":"first failure"},{"productId":"p1","error":"second"}]}`
		})
		cart := &fakeCart{cart: cartWith(2)}
		rec := &recorded{}
		flow := NewFlow("cart-1", cart, NewDrafter(client, &staticTokens{token: "tok"}),
			WithRecorder(rec), WithPublisher(rec))

		status, err := flow.Submit(context.Background())
		require.Error(t, err)
		assert.Equal(t, StateError, status.State)
		assert.Equal(t, "Failed to create draft orders: first failure", status.Error)
		assert.False(t, cart.cleared)
		assert.Len(t, cart.Cart().Items, 2)
		require.Len(t, rec.attempts, 1)
		assert.Equal(t, StateError, rec.attempts[0].State)
		assert.Empty(t, rec.published)

		_, err = flow.Submit(context.Background())
		require.ErrorIs(t, err, inErrors.ErrCheckoutNotIdle)

		require.NoError(t, flow.Retry())
		assert.Equal(t, StateIdle, flow.Status().State)
		require.ErrorIs(t, flow.Retry(), inErrors.ErrCheckoutNotRetryable)
	})

	t.Run("given api error should surface its message", func(t *testing.T) {
		client := newDraftServer(t, func(body request.CreateDraftBatch) (int, string) {
			return http.StatusBadRequest, `{"message":"invalid product"}`
		})
		flow := NewFlow("cart-1", &fakeCart{cart: cartWith(1)}, NewDrafter(client, &staticTokens{token: "tok"}))

		status, err := flow.Submit(context.Background())
		require.ErrorIs(t, err, inErrors.ErrAPI)
		assert.Equal(t, "invalid product", status.Error)
	})

	t.Run("given empty cart should fail without calling the api", func(t *testing.T) {
		flow := NewFlow("cart-1", &fakeCart{}, NewDrafter(nil, &staticTokens{token: "tok"}))
		status, err := flow.Submit(context.Background())
		require.ErrorIs(t, err, inErrors.ErrEmptyCheckout)
		assert.Equal(t, StateError, status.State)
	})

	t.Run("given submit while processing should reject the second one", func(t *testing.T) {
		release := make(chan struct{})
		client := newDraftServer(t, func(body request.CreateDraftBatch) (int, string) {
			<-release
			return http.StatusOK, `{"results":[{"draftOrderId":"d1","productId":"p0"}],"redirectUrl":"u"}`
		})
		flow := NewFlow("cart-1", &fakeCart{cart: cartWith(1)}, NewDrafter(client, &staticTokens{token: "tok"}))

		done := make(chan error, 1)
		go func() {
			_, err := flow.Submit(context.Background())
			done <- err
		}()
		require.Eventually(t, func() bool { return flow.Status().State == StateProcessing }, time.Second, 5*time.Millisecond)

		_, err := flow.Submit(context.Background())
		require.ErrorIs(t, err, inErrors.ErrCheckoutInProgress)

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, StateSuccess, flow.Status().State)
	})
}

func TestPoller(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/product-order-statuses", r.URL.Path)
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		fmt.Fprintf(w, `{"orders":[{"id":"o%d","status":"shipped","quantity":2,"products":{"title":"Mug"}}]}`, n)
	}))
	defer srv.Close()
	client, err := api.NewClient(config.Api{BaseURL: srv.URL, Timeout: time.Second}, nil)
	require.NoError(t, err)

	updates := make(chan response.OrderStatuses, 10)
	poller := NewPoller(NewStatusFetcher(client, &staticTokens{token: "tok"}), 20*time.Millisecond,
		func(s response.OrderStatuses) {
			select {
			case updates <- s:
			default:
			}
		})

	c, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(c)

	first := <-updates
	require.Len(t, first.Orders, 1)
	assert.Equal(t, "Mug (×2) order: Shipped", first.Orders[0].Summary())
	second := <-updates
	assert.NotEqual(t, first.Orders[0].ID, second.Orders[0].ID)

	latest, lastErr, loaded := poller.Latest()
	assert.True(t, loaded)
	assert.NoError(t, lastErr)
	assert.NotEmpty(t, latest.Orders)
}
