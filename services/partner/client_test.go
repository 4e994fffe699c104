package partner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"partnerdesk/models"
)

func staticToken(tok string) TokenFunc {
	return func(context.Context) (string, error) { return tok, nil }
}

func TestListEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		switch r.URL.Path {
		case "/api/urban-services/bookings/available":
			_, _ = io.WriteString(w, `{"success":true,"data":[{"_id":"a1","status":"pending"}]}`)
		case "/api/urban-services/partner/bookings":
			_, _ = io.WriteString(w, `{"success":true,"bookings":[{"_id":"m1","status":"accepted"},{"_id":"m2","status":"completed"}]}`)
		case "/api/urban-services/bookings/m1":
			_, _ = io.WriteString(w, `{"data":{"_id":"m1","status":"accepted","title":"Plumbing"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", staticToken("tok"))
	ctx := context.Background()

	available, err := c.ListAvailable(ctx)
	if err != nil || len(available) != 1 || available[0].ID != "a1" {
		t.Fatalf("ListAvailable = %+v, %v", available, err)
	}
	assigned, err := c.ListAssigned(ctx)
	if err != nil || len(assigned) != 2 || assigned[1].Status != models.StatusCompleted {
		t.Fatalf("ListAssigned = %+v, %v", assigned, err)
	}
	one, err := c.GetBooking(ctx, "m1")
	if err != nil || one.Title != "Plumbing" {
		t.Fatalf("GetBooking = %+v, %v", one, err)
	}
}

func TestActionBodies(t *testing.T) {
	type seen struct {
		method, path string
		body         map[string]any
	}
	calls := make(chan seen, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls <- seen{r.Method, r.URL.Path, body}
		_, _ = io.WriteString(w, `{"success":true}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"))
	ctx := context.Background()

	if err := c.Accept(ctx, "b1"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if got := <-calls; got.method != http.MethodPut || got.path != "/urban-services/bookings/b1/accept" {
		t.Fatalf("accept call = %+v", got)
	}

	if err := c.Reject(ctx, "b1", "too far"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if got := <-calls; got.path != "/urban-services/bookings/b1/reject" || got.body["reason"] != "too far" {
		t.Fatalf("reject call = %+v", got)
	}

	extra := map[string]any{"notes": "cash", "status": "ignored"}
	if err := c.UpdateStatus(ctx, "b1", models.StatusCompleted, extra); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got := <-calls
	if got.path != "/urban-services/bookings/b1/status" || got.body["status"] != "completed" || got.body["notes"] != "cash" {
		t.Fatalf("status call = %+v", got)
	}

	update := models.DestinationUpdate{Address: "4 Lake View", City: "Chennai", PinCode: "600001",
		Coordinates: models.Coordinates{Lat: 13.05, Lng: 80.25}}
	if err := c.UpdateDestination(ctx, "b1", update); err != nil {
		t.Fatalf("UpdateDestination: %v", err)
	}
	got = <-calls
	coords, _ := got.body["coordinates"].(map[string]any)
	if got.path != "/urban-services/bookings/b1/destination" || got.body["pinCode"] != "600001" || coords["lat"] != 13.05 {
		t.Fatalf("destination call = %+v", got)
	}
}

func TestBackendErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"success":false,"message":"Booking already taken"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"), WithMaxRetries(3))
	err := c.Accept(context.Background(), "b1")

	apiErr, ok := IsAPIError(err)
	if !ok {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "Booking already taken" {
		t.Fatalf("APIError = %+v", apiErr)
	}
	if hits.Load() != 1 {
		t.Fatalf("server hit %d times, want 1", hits.Load())
	}
}

func TestTransportFailureIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("response writer cannot hijack")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"), WithMaxRetries(2))
	if _, err := c.ListAvailable(context.Background()); err != nil {
		t.Fatalf("ListAvailable after retries: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("server hit %d times, want 3", hits.Load())
	}
}

func TestCredentialErrorStopsRequest(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", func(context.Context) (string, error) {
		return "", errors.New("no session")
	})
	if err := c.Accept(context.Background(), "b1"); err == nil {
		t.Fatal("Accept succeeded without credentials")
	}
}

func TestStatsAndEarnings(t *testing.T) {
	var period string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/urban-services/partner/stats":
			_, _ = io.WriteString(w, `{"totalBookings":12,"completedBookings":"9","todayEarnings":"1250.50","averageRating":4.7,"pendingBookings":null}`)
		case "/urban-services/partner/earnings":
			period = r.URL.Query().Get("period")
			_, _ = io.WriteString(w, `{"success":true,"data":{"total":5400}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"))
	ctx := context.Background()

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := models.PartnerStats{TotalBookings: 12, CompletedBookings: 9, TodayEarnings: 1250.5, AverageRating: 4.7}
	if stats != want {
		t.Fatalf("Stats = %+v, want %+v", stats, want)
	}

	report, err := c.Earnings(ctx, "")
	if err != nil || period != "month" {
		t.Fatalf("Earnings = %s, %v; period %q", report, err, period)
	}
	if _, err := c.Earnings(ctx, "week"); err != nil || period != "week" {
		t.Fatalf("Earnings(week) period = %q, %v", period, err)
	}
	var body struct {
		Data struct {
			Total float64 `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(report, &body); err != nil || body.Data.Total != 5400 {
		t.Fatalf("earnings report = %s", report)
	}
}

func TestStatsInDataWrapper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":{"totalBookings":3,"totalEarnings":900}}`)
	}))
	defer srv.Close()

	stats, err := NewClient(srv.URL, staticToken("tok")).Stats(context.Background())
	if err != nil || stats.TotalBookings != 3 || stats.TotalEarnings != 900 {
		t.Fatalf("Stats = %+v, %v", stats, err)
	}
}

func TestListToleratesLooseCustomerShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"bookings":[
			{"_id":"m1","status":"accepted","customer":{"name":"Ravi","phone":9876543210}},
			{"_id":"m2","status":"on_the_way","customer":"guest","address":{"coordinates":{"lat":"13.08","lng":"80.27"}}},
			{"_id":"m3","status":"completed","customerPhone":4412345,"scheduledDate":12345}
		]}`)
	}))
	defer srv.Close()

	assigned, err := NewClient(srv.URL, staticToken("tok")).ListAssigned(context.Background())
	if err != nil || len(assigned) != 3 {
		t.Fatalf("ListAssigned = %+v, %v", assigned, err)
	}
	if assigned[0].ContactPhone() != "9876543210" || assigned[2].ContactPhone() != "4412345" {
		t.Fatalf("phones = %q %q", assigned[0].ContactPhone(), assigned[2].ContactPhone())
	}
	if pt, ok := assigned[1].Destination(); !ok || pt.Lat != 13.08 {
		t.Fatalf("m2 destination = %v, %v", pt, ok)
	}
}
