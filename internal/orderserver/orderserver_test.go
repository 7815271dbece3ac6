package orderserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tableside-sync/internal/remote"
	"github.com/angelmondragon/tableside-sync/pkg/db"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
)

func newServer(t *testing.T) (*httptest.Server, *Repository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	client, err := Open(context.Background(), db.DriverSQLite, dsn, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	repo := NewRepository(client.DB())
	srv := httptest.NewServer(NewRouter(repo, client, logger.Nop()))
	t.Cleanup(srv.Close)
	return srv, repo
}

func wireOrder(orderID string, table int) remote.WireOrder {
	return remote.WireOrder{
		OrderID:     orderID,
		TableNumber: table,
		OrderStatus: "open",
		Items: []remote.WireItem{
			{OrderItemID: "l1", ItemID: "burger", Name: "Burger", Price: 5, Quantity: 2},
			{OrderItemID: "l2", ItemID: "cola", Name: "Cola", Price: 3.5, Quantity: 1},
		},
	}
}

func send(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCreateAssignsIDAndRecomputesTotal(t *testing.T) {
	srv, _ := newServer(t)

	doc := wireOrder("o1", 7)
	doc.TotalPrice = 999
	resp := send(t, http.MethodPost, srv.URL+"/orders", doc)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var env remote.OrderEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.NotEmpty(t, env.Order.ID)
	require.Equal(t, "o1", env.Order.OrderID)
	require.InDelta(t, 13.5, env.Order.TotalPrice, 0.0001)
	require.Len(t, env.Order.Items, 2)

	resp = send(t, http.MethodGet, srv.URL+"/orders/o1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched remote.WireOrder
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
	require.Equal(t, env.Order.ID, fetched.ID)
}

func TestCreateConflicts(t *testing.T) {
	srv, _ := newServer(t)

	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, srv.URL+"/orders", wireOrder("o1", 7)).StatusCode)
	require.Equal(t, http.StatusConflict, send(t, http.MethodPost, srv.URL+"/orders", wireOrder("o1", 8)).StatusCode)
	require.Equal(t, http.StatusConflict, send(t, http.MethodPost, srv.URL+"/orders", wireOrder("o2", 7)).StatusCode)

	settled := wireOrder("o3", 7)
	settled.OrderStatus = "paid_card"
	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, srv.URL+"/orders", settled).StatusCode)
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	srv, _ := newServer(t)

	doc := wireOrder("", 7)
	require.Equal(t, http.StatusBadRequest, send(t, http.MethodPost, srv.URL+"/orders", doc).StatusCode)

	doc = wireOrder("o1", 7)
	doc.Items[0].Quantity = 0
	require.Equal(t, http.StatusBadRequest, send(t, http.MethodPost, srv.URL+"/orders", doc).StatusCode)
}

func TestReplaceKeepsIdentity(t *testing.T) {
	srv, _ := newServer(t)

	resp := send(t, http.MethodPost, srv.URL+"/orders", wireOrder("o1", 7))
	var env remote.OrderEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))

	doc := wireOrder("o1", 7)
	doc.Items = doc.Items[:1]
	doc.OrderStatus = "paid_cash"
	resp = send(t, http.MethodPut, srv.URL+"/orders/o1", doc)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var replaced remote.WireOrder
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&replaced))
	require.Equal(t, env.Order.ID, replaced.ID)
	require.Equal(t, "paid_cash", replaced.OrderStatus)
	require.InDelta(t, 10.0, replaced.TotalPrice, 0.0001)

	require.Equal(t, http.StatusNotFound, send(t, http.MethodPut, srv.URL+"/orders/missing", wireOrder("missing", 3)).StatusCode)
	require.Equal(t, http.StatusBadRequest, send(t, http.MethodPut, srv.URL+"/orders/o1", wireOrder("other", 3)).StatusCode)
}

func TestReplaceOpenTableConflict(t *testing.T) {
	srv, _ := newServer(t)

	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, srv.URL+"/orders", wireOrder("o1", 7)).StatusCode)
	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, srv.URL+"/orders", wireOrder("o2", 8)).StatusCode)

	require.Equal(t, http.StatusConflict, send(t, http.MethodPut, srv.URL+"/orders/o2", wireOrder("o2", 7)).StatusCode)
}

func TestListFiltersByTableAndStatus(t *testing.T) {
	srv, _ := newServer(t)

	send(t, http.MethodPost, srv.URL+"/orders", wireOrder("o1", 7))
	paid := wireOrder("o2", 7)
	paid.OrderStatus = "paid_cash"
	send(t, http.MethodPost, srv.URL+"/orders", paid)
	send(t, http.MethodPost, srv.URL+"/orders", wireOrder("o3", 9))

	resp := send(t, http.MethodGet, srv.URL+"/orders?tableNumber=7&status=open", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []remote.WireOrder
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	require.Equal(t, "o1", list[0].OrderID)

	resp = send(t, http.MethodGet, srv.URL+"/orders?tableNumber=4", nil)
	list = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Empty(t, list)

	require.Equal(t, http.StatusBadRequest, send(t, http.MethodGet, srv.URL+"/orders?status=bogus", nil).StatusCode)
}

func TestDeleteAndRemoveItem(t *testing.T) {
	srv, _ := newServer(t)
	send(t, http.MethodPost, srv.URL+"/orders", wireOrder("o1", 7))

	resp := send(t, http.MethodDelete, srv.URL+"/orders/o1/items/l2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc remote.WireOrder
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Len(t, doc.Items, 1)
	require.InDelta(t, 10.0, doc.TotalPrice, 0.0001)

	require.Equal(t, http.StatusNotFound, send(t, http.MethodDelete, srv.URL+"/orders/o1/items/l2", nil).StatusCode)
	require.Equal(t, http.StatusOK, send(t, http.MethodDelete, srv.URL+"/orders/o1", nil).StatusCode)
	require.Equal(t, http.StatusNotFound, send(t, http.MethodDelete, srv.URL+"/orders/o1", nil).StatusCode)
	require.Equal(t, http.StatusNotFound, send(t, http.MethodGet, srv.URL+"/orders/o1", nil).StatusCode)
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t)
	require.Equal(t, http.StatusOK, send(t, http.MethodGet, srv.URL+"/healthz", nil).StatusCode)
}

func TestClientAgainstServer(t *testing.T) {
	srv, _ := newServer(t)
	client, err := remote.NewClient(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	created, err := client.Create(ctx, remote.FromWire(wireOrder("o1", 7)))
	require.NoError(t, err)
	require.NotEmpty(t, created.ServerRef)

	open, err := client.FetchOpenByTable(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "o1", open.OrderID)

	_, err = client.Fetch(ctx, "nope")
	require.True(t, remote.IsNotFound(err))

	require.NoError(t, client.RemoveLine(ctx, "o1", "l1"))
	require.NoError(t, client.Delete(ctx, "o1"))
	require.NoError(t, client.Ping(ctx))
}
