package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"unicode"
)

// Grades a (query, context) pair: "yes" when they share any content word.
// Request: {"query":"...","context":"..."}  Response: {"score":"yes"|"no"}

type evalReq struct {
	Query   string `json:"query"`
	Context string `json:"context"`
}

type evalResp struct {
	Score string `json:"score"`
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "of": {}, "to": {}, "in": {},
	"what": {}, "how": {}, "who": {}, "when": {}, "where": {}, "and": {}, "or": {}, "for": {},
}

func words(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, stop := stopwords[w]; !stop {
			out[w] = struct{}{}
		}
	}
	return out
}

func handleEval(w http.ResponseWriter, r *http.Request) {
	var req evalReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := evalResp{Score: "no"}
	ctxWords := words(req.Context)
	for q := range words(req.Query) {
		if _, ok := ctxWords[q]; ok {
			resp.Score = "yes"
			break
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func main() {
	addr := ":8081"
	if v := os.Getenv("EVAL_ADDR"); v != "" {
		addr = v
	}
	http.HandleFunc("/eval", handleEval)
	log.Printf("Evaluator mock listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
