package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/retriever"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// Serves the hybrid retrieval protocol over an in-memory bleve index.
// Request: {"query":"...","top_k":8}
// Response: {"results":[{"id","content","metadata","score"}]}

type searchReq struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResp struct {
	Results []schema.EvidenceItem `json:"results"`
}

var sampleCorpus = []schema.EvidenceItem{
	{ID: "visa-1", Content: "Tourist visas can be requested online before travel; the single entry visa fee is 20 OMR."},
	{ID: "visa-2", Content: "Visa on arrival is available to some nationalities at Muscat International Airport."},
	{ID: "visa-3", Content: "A tourist visa allows a stay of up to 30 days and can be extended once."},
	{ID: "sites-1", Content: "Nizwa Fort is open daily from 8am to 8pm and is a short drive from Muscat."},
	{ID: "sites-2", Content: "The Sultan Qaboos Grand Mosque welcomes visitors every morning except Friday."},
}

func main() {
	addr := ":8083"
	if v := os.Getenv("RETRIEVAL_ADDR"); v != "" {
		addr = v
	}
	docs := sampleCorpus
	if path := os.Getenv("RETRIEVAL_CORPUS"); path != "" {
		loaded, err := retriever.LoadCorpus(path)
		if err != nil {
			log.Fatalf("load corpus: %v", err)
		}
		docs = loaded
	}
	idx, err := retriever.NewBM25Index(docs)
	if err != nil {
		log.Fatalf("build index: %v", err)
	}
	bm25 := &retriever.BM25Retriever{Index: idx}
	defer bm25.Close()

	http.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		var req searchReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.TopK <= 0 {
			req.TopK = 8
		}
		items, err := bm25.Search(r.Context(), req.Query, req.TopK)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(searchResp{Results: items})
	})
	log.Printf("Retrieval mock listening on %s (%d documents)", addr, len(docs))
	log.Fatal(http.ListenAndServe(addr, nil))
}
