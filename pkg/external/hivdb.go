package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hivdr-report/internal/domain"
)

// DefaultHIVDBURL is the Stanford HIVDB (Sierra) GraphQL endpoint
const DefaultHIVDBURL = "https://hivdb.stanford.edu/graphql"

// HIVDBClient handles interactions with the HIVDB genotypic resistance GraphQL API
type HIVDBClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// NewHIVDBClient creates a new HIVDB API client
func NewHIVDBClient(config domain.HIVDBConfig) *HIVDBClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultHIVDBURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}

	return &HIVDBClient{
		baseURL:   config.BaseURL,
		userAgent: config.UserAgent,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// sequenceAnalysisQuery requests drug resistance, mutation and comment data for
// every submitted sequence
const sequenceAnalysisQuery = `query sequenceAnalysis($sequences: [UnalignedSequenceInput]!) {
  viewer {
    currentVersion { text, publishDate },
    sequenceAnalysis(sequences: $sequences) {
      inputSequence { header },
      validationResults { level, message },
      bestMatchingSubtype { display },
      drugResistance {
        gene { name },
        drugScores {
          drugClass { name, fullName },
          drug { displayAbbr, fullName },
          SIR,
          score,
          level,
          text
        },
        mutationsByTypes {
          mutationType,
          mutations { text, shortText }
        },
        commentsByTypes {
          commentType,
          comments { type, text, highlightText }
        }
      }
    }
  }
}`

// SierraResponse represents the JSON response from the HIVDB GraphQL API
type SierraResponse struct {
	Data struct {
		Viewer struct {
			CurrentVersion struct {
				Text        string `json:"text"`
				PublishDate string `json:"publishDate"`
			} `json:"currentVersion"`
			SequenceAnalysis []SierraSequenceAnalysis `json:"sequenceAnalysis"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// SierraSequenceAnalysis is the analysis of one submitted sequence
type SierraSequenceAnalysis struct {
	InputSequence struct {
		Header string `json:"header"`
	} `json:"inputSequence"`
	ValidationResults []struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	} `json:"validationResults"`
	BestMatchingSubtype *struct {
		Display string `json:"display"`
	} `json:"bestMatchingSubtype"`
	DrugResistance []SierraDrugResistance `json:"drugResistance"`
}

// SierraDrugResistance is the resistance interpretation for one gene
type SierraDrugResistance struct {
	Gene struct {
		Name string `json:"name"`
	} `json:"gene"`
	DrugScores []struct {
		DrugClass struct {
			Name     string `json:"name"`
			FullName string `json:"fullName"`
		} `json:"drugClass"`
		Drug struct {
			DisplayAbbr string `json:"displayAbbr"`
			FullName    string `json:"fullName"`
		} `json:"drug"`
		SIR   string  `json:"SIR"`
		Score float64 `json:"score"`
		Level int     `json:"level"`
		Text  string  `json:"text"`
	} `json:"drugScores"`
	MutationsByTypes []struct {
		MutationType string `json:"mutationType"`
		Mutations    []struct {
			Text      string `json:"text"`
			ShortText string `json:"shortText"`
		} `json:"mutations"`
	} `json:"mutationsByTypes"`
	CommentsByTypes []struct {
		CommentType string `json:"commentType"`
		Comments    []struct {
			Type          string   `json:"type"`
			Text          string   `json:"text"`
			HighlightText []string `json:"highlightText"`
		} `json:"comments"`
	} `json:"commentsByTypes"`
}

// Analyze submits the sequences and returns the service's interpretation.
// Connection failures and HTTP 429/5xx responses are reported as
// *domain.TransportError; errors reported by the API are not retryable.
func (c *HIVDBClient) Analyze(ctx context.Context, sequences []domain.Sequence) (*domain.AnalysisResponse, error) {
	if len(sequences) == 0 {
		return nil, domain.NewEmptyInputError("no sequences to analyze")
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	response, err := c.queryGraphQL(ctx, sequences)
	if err != nil {
		return nil, err
	}

	if len(response.Errors) > 0 {
		messages := make([]string, 0, len(response.Errors))
		for _, e := range response.Errors {
			messages = append(messages, e.Message)
		}
		return nil, &domain.ServiceResponseError{Messages: messages}
	}

	return convertToAnalysisResponse(response), nil
}

// queryGraphQL executes the sequence analysis query against the HIVDB API
func (c *HIVDBClient) queryGraphQL(ctx context.Context, sequences []domain.Sequence) (*SierraResponse, error) {
	requestBody := map[string]interface{}{
		"query": sequenceAnalysisQuery,
		"variables": map[string]interface{}{
			"sequences": sequences,
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create GraphQL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("failed to read GraphQL response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, &domain.TransportError{
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(truncate(string(body), 200))),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ServiceResponseError{
			Messages: []string{fmt.Sprintf("HIVDB API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))},
		}
	}

	var response SierraResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse GraphQL response: %w", err)
	}

	return &response, nil
}

// convertToAnalysisResponse converts the HIVDB response to the domain model
func convertToAnalysisResponse(response *SierraResponse) *domain.AnalysisResponse {
	viewer := response.Data.Viewer

	version := viewer.CurrentVersion.Text
	if viewer.CurrentVersion.PublishDate != "" {
		version = fmt.Sprintf("%s (%s)", version, viewer.CurrentVersion.PublishDate)
	}

	result := &domain.AnalysisResponse{
		DatabaseVersion: version,
		Sequences:       make([]domain.SequenceResult, 0, len(viewer.SequenceAnalysis)),
	}

	for _, analysis := range viewer.SequenceAnalysis {
		seq := domain.SequenceResult{
			Header: analysis.InputSequence.Header,
		}
		if analysis.BestMatchingSubtype != nil {
			seq.Subtype = analysis.BestMatchingSubtype.Display
		}
		for _, v := range analysis.ValidationResults {
			seq.Validation = append(seq.Validation, domain.ValidationMessage{Level: v.Level, Message: v.Message})
		}
		for _, dr := range analysis.DrugResistance {
			seq.Genes = append(seq.Genes, convertGene(dr))
		}
		result.Sequences = append(result.Sequences, seq)
	}

	return result
}

func convertGene(dr SierraDrugResistance) domain.GeneResult {
	gene := domain.GeneResult{Name: dr.Gene.Name}

	for _, ds := range dr.DrugScores {
		gene.DrugScores = append(gene.DrugScores, domain.DrugScore{
			DrugClass: ds.DrugClass.Name,
			DrugName:  ds.Drug.FullName,
			DrugAbbr:  ds.Drug.DisplayAbbr,
			SIR:       ds.SIR,
			Score:     ds.Score,
			Level:     ds.Level,
			Text:      ds.Text,
		})
	}

	for _, mt := range dr.MutationsByTypes {
		group := domain.MutationGroup{Type: mt.MutationType}
		for _, m := range mt.Mutations {
			group.Mutations = append(group.Mutations, m.Text)
		}
		gene.MutationGroups = append(gene.MutationGroups, group)
	}

	for _, ct := range dr.CommentsByTypes {
		group := domain.CommentGroup{Type: ct.CommentType}
		for _, c := range ct.Comments {
			group.Comments = append(group.Comments, domain.Comment{
				Type:        c.Type,
				Text:        c.Text,
				Highlighted: c.HighlightText,
			})
		}
		gene.CommentGroups = append(gene.CommentGroups, group)
	}

	return gene
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
