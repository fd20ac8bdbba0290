package external

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/biomind-nexus-server/internal/domain"
)

const fetchBatchSize = 50

// PubMedClient talks to NCBI PubMed via the E-utilities endpoints. NCBI
// allows 3 requests per second with an API key and 1 per second without;
// the limiter enforces that across all callers sharing the client.
type PubMedClient struct {
	baseURL    string
	apiKey     string
	email      string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *CacheClient
}

// PubMedOptions configures the client.
type PubMedOptions struct {
	BaseURL string
	APIKey  string
	Email   string
	Timeout time.Duration
	Cache   *CacheClient
}

// NewPubMedClient creates a PubMed E-utilities client.
func NewPubMedClient(opts PubMedOptions) *PubMedClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	perSecond := 1
	if opts.APIKey != "" {
		perSecond = 3
	}

	return &PubMedClient{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		email:   opts.Email,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		cache:   opts.Cache,
	}
}

type esearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
	IDList  struct {
		IDs []string `xml:"Id"`
	} `xml:"IdList"`
}

type efetchResult struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			ArticleTitle string `xml:"ArticleTitle"`
			Abstract     struct {
				AbstractText []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title        string `xml:"Title"`
				JournalIssue struct {
					PubDate struct {
						Year  string `xml:"Year"`
						Month string `xml:"Month"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
}

// SearchTerm builds the title/abstract search term for a drug/disease pair.
func SearchTerm(drug, disease string) string {
	return fmt.Sprintf("(%s[Title/Abstract]) AND (%s[Title/Abstract])", drug, disease)
}

// Search runs esearch and returns up to max PMIDs.
func (p *PubMedClient) Search(ctx context.Context, term string, max int) ([]string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"db":      {"pubmed"},
		"term":    {term},
		"retmode": {"xml"},
		"retmax":  {strconv.Itoa(max)},
	}
	p.signParams(params)

	body, err := p.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("failed to search PubMed: %w", err)
	}

	var result esearchResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, domain.WrapError(domain.ErrContractViolation, "failed to parse esearch response", err)
	}
	return result.IDList.IDs, nil
}

// Fetch retrieves citations for PMIDs, in windows of 50 ids per request.
// Cached citations are served without touching the network.
func (p *PubMedClient) Fetch(ctx context.Context, pmids []string) ([]domain.Citation, error) {
	var citations []domain.Citation
	var missing []string

	if p.cache != nil {
		for _, pmid := range pmids {
			if c, found, _ := p.cache.GetCitation(ctx, pmid); found {
				citations = append(citations, *c)
				continue
			}
			missing = append(missing, pmid)
		}
	} else {
		missing = pmids
	}

	for start := 0; start < len(missing); start += fetchBatchSize {
		end := start + fetchBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch, err := p.fetchBatch(ctx, missing[start:end])
		if err != nil {
			return nil, err
		}
		citations = append(citations, batch...)
	}
	return citations, nil
}

func (p *PubMedClient) fetchBatch(ctx context.Context, pmids []string) ([]domain.Citation, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
	}
	p.signParams(params)

	body, err := p.get(ctx, "efetch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PubMed articles: %w", err)
	}

	var result efetchResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, domain.WrapError(domain.ErrContractViolation, "failed to parse efetch response", err)
	}

	citations := make([]domain.Citation, 0, len(result.Articles))
	for _, article := range result.Articles {
		c := domain.Citation{
			PMID:     article.MedlineCitation.PMID,
			Title:    cleanXMLValue(article.MedlineCitation.Article.ArticleTitle),
			Abstract: cleanXMLValue(strings.Join(article.MedlineCitation.Article.Abstract.AbstractText, " ")),
			Journal:  article.MedlineCitation.Article.Journal.Title,
		}
		if year, err := strconv.Atoi(article.MedlineCitation.Article.Journal.JournalIssue.PubDate.Year); err == nil {
			c.Year = year
		}
		c.URL = "https://pubmed.ncbi.nlm.nih.gov/" + c.PMID + "/"
		citations = append(citations, c)

		if p.cache != nil {
			_ = p.cache.SetCitation(ctx, &c, 0)
		}
	}
	return citations, nil
}

func (p *PubMedClient) signParams(params url.Values) {
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}
	if p.email != "" {
		params.Set("email", p.email)
	}
}

func (p *PubMedClient) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	fullURL := fmt.Sprintf("%s%s?%s", p.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("PubMed %s returned status %d", endpoint, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// cleanXMLValue strips the formatting tags PubMed leaves in titles and
// abstracts.
func cleanXMLValue(value string) string {
	cleaners := []string{
		"<b>", "</b>",
		"<i>", "</i>",
		"<em>", "</em>",
		"<strong>", "</strong>",
		"<sup>", "</sup>",
		"<sub>", "</sub>",
	}
	result := value
	for _, cleaner := range cleaners {
		result = strings.ReplaceAll(result, cleaner, "")
	}
	return strings.TrimSpace(result)
}
