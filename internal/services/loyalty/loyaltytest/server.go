// Package loyaltytest provides an in-process fake of the loyalty platform's
// admin REST API for tests.
package loyaltytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
)

// APIPrefix is the path the fake serves the admin API under
const APIPrefix = "/admin/api/2024-07"

type customer struct {
	ID        int64  `json:"id"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	Tags      string `json:"tags"`
}

type discountCode struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	PriceRuleID int64  `json:"price_rule_id"`
	UsageCount  int    `json:"usage_count"`
}

// Server is a fake loyalty platform
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	nextID        int64
	customers     map[int64]*customer
	priceRules    map[int64]json.RawMessage
	discountCodes map[string]*discountCode
	calls         map[string]int

	failDiscounts bool
	down          bool
}

// New starts a fake platform. Call Close when done.
func New() *Server {
	s := &Server{
		nextID:        1000,
		customers:     make(map[int64]*customer),
		priceRules:    make(map[int64]json.RawMessage),
		discountCodes: make(map[string]*discountCode),
		calls:         make(map[string]int),
	}

	r := mux.NewRouter()
	api := r.PathPrefix(APIPrefix).Subrouter()
	api.Use(s.gate)
	api.HandleFunc("/customers/search.json", s.searchCustomers).Methods(http.MethodGet)
	api.HandleFunc("/customers.json", s.createCustomer).Methods(http.MethodPost)
	api.HandleFunc("/customers/{id}.json", s.getCustomer).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id}.json", s.updateCustomer).Methods(http.MethodPut)
	api.HandleFunc("/price_rules.json", s.createPriceRule).Methods(http.MethodPost)
	api.HandleFunc("/price_rules/{id}/discount_codes.json", s.createDiscountCode).Methods(http.MethodPost)
	api.HandleFunc("/discount_codes/lookup.json", s.lookupDiscountCode).Methods(http.MethodGet)
	api.HandleFunc("/shop.json", s.shop).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the admin API base to configure clients with
func (s *Server) BaseURL() string {
	return s.URL + APIPrefix
}

// RedemptionBaseURL is the storefront discount link base
func (s *Server) RedemptionBaseURL() string {
	return s.URL + "/discount/"
}

// AddCustomer seeds a customer and returns its id
func (s *Server) AddCustomer(phone, name, email, tags string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.customers[s.nextID] = &customer{ID: s.nextID, Phone: phone, Email: email, FirstName: name, Tags: tags}
	return strconv.FormatInt(s.nextID, 10)
}

// CustomerTags returns the stored tag string for a customer
func (s *Server) CustomerTags(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := strconv.ParseInt(id, 10, 64)
	if c, ok := s.customers[n]; ok {
		return c.Tags
	}
	return ""
}

// CustomerCount returns how many customers exist
func (s *Server) CustomerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.customers)
}

// MarkUsed records one redemption of code
func (s *Server) MarkUsed(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.discountCodes[code]; ok {
		d.UsageCount++
	}
}

// SetFailDiscounts makes price rule creation fail with 500
func (s *Server) SetFailDiscounts(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDiscounts = fail
}

// SetDown makes every endpoint fail with 503
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Calls returns how many requests hit the named operation. Names are
// "METHOD path-template", e.g. "PUT /customers/{id}.json".
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tmpl, _ := mux.CurrentRoute(r).GetPathTemplate()
		s.mu.Lock()
		s.calls[r.Method+" "+strings.TrimPrefix(tmpl, APIPrefix)]++
		down := s.down
		s.mu.Unlock()

		if down {
			http.Error(w, `{"errors":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("X-Shopify-Access-Token") == "" {
			http.Error(w, `{"errors":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) searchCustomers(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimPrefix(r.URL.Query().Get("query"), "phone:")

	s.mu.Lock()
	defer s.mu.Unlock()
	found := []*customer{}
	for _, c := range s.customers {
		if c.Phone == phone || strings.HasSuffix(c.Phone, phone) {
			found = append(found, c)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": found})
}

func (s *Server) createCustomer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Customer customer `json:"customer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := in.Customer
	c.ID = s.nextID
	s.customers[c.ID] = &c
	writeJSON(w, http.StatusCreated, map[string]any{"customer": c})
}

func (s *Server) lookupCustomer(w http.ResponseWriter, r *http.Request) *customer {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, `{"errors":"not found"}`, http.StatusNotFound)
		return nil
	}
	c, ok := s.customers[id]
	if !ok {
		http.Error(w, `{"errors":"not found"}`, http.StatusNotFound)
		return nil
	}
	return c
}

func (s *Server) getCustomer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.lookupCustomer(w, r); c != nil {
		writeJSON(w, http.StatusOK, map[string]any{"customer": c})
	}
}

func (s *Server) updateCustomer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Customer struct {
			Tags *string `json:"tags"`
		} `json:"customer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.lookupCustomer(w, r)
	if c == nil {
		return
	}
	if in.Customer.Tags != nil {
		c.Tags = *in.Customer.Tags
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": c})
}

func (s *Server) createPriceRule(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PriceRule json.RawMessage `json:"price_rule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDiscounts {
		http.Error(w, `{"errors":"internal"}`, http.StatusInternalServerError)
		return
	}
	s.nextID++
	s.priceRules[s.nextID] = in.PriceRule
	writeJSON(w, http.StatusCreated, map[string]any{"price_rule": map[string]any{"id": s.nextID}})
}

func (s *Server) createDiscountCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DiscountCode struct {
			Code string `json:"code"`
		} `json:"discount_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ruleID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if _, ok := s.priceRules[ruleID]; !ok {
		http.Error(w, `{"errors":"not found"}`, http.StatusNotFound)
		return
	}
	s.nextID++
	d := &discountCode{ID: s.nextID, Code: in.DiscountCode.Code, PriceRuleID: ruleID}
	s.discountCodes[d.Code] = d
	writeJSON(w, http.StatusCreated, map[string]any{"discount_code": d})
}

func (s *Server) lookupDiscountCode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.discountCodes[r.URL.Query().Get("code")]
	if !ok {
		http.Error(w, `{"errors":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discount_code": d})
}

func (s *Server) shop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"shop": map[string]any{"name": "fake"}})
}
