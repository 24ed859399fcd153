package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"github.com/odyssey-erp/reconciler/internal/accounting/accounts"
	"github.com/odyssey-erp/reconciler/internal/targets"
)

const geminiInstruction = `Você é um contador brasileiro conciliando extratos bancários.
Recebe uma transação bancária, as faturas/despesas em aberto e o plano de contas analítico.
Responda somente com JSON no esquema pedido, ordenado da sugestão mais provável para a menos provável.
Use targetType "manual_account" com contraAccount quando nenhum item em aberto corresponder.
Nunca classifique aportes, empréstimos ou devoluções de sócios como receita.`

// GeminiConfig configures the Gemini backed suggester.
type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxItems    int
	MaxAccounts int
}

// ChartLister lists postable accounts for the prompt.
type ChartLister interface {
	List(ctx context.Context) ([]accounts.Account, error)
}

// GeminiSuggester implements Suggester on the Gemini API behind a circuit
// breaker so an outage stops costing a timeout per transaction.
type GeminiSuggester struct {
	client  *genai.Client
	cfg     GeminiConfig
	items   OpenItemLister
	chart   ChartLister
	breaker *gobreaker.CircuitBreaker
}

// NewGeminiSuggester opens a Gemini client behind a circuit breaker.
func NewGeminiSuggester(ctx context.Context, cfg GeminiConfig, items OpenItemLister, chart ChartLister) (*GeminiSuggester, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("reconciliation: gemini api key required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 40
	}
	if cfg.MaxAccounts <= 0 {
		cfg.MaxAccounts = 120
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("reconciliation: gemini client: %w", err)
	}
	return &GeminiSuggester{
		client: client,
		cfg:    cfg,
		items:  items,
		chart:  chart,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gemini-suggester",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}, nil
}

type geminiAnswer struct {
	Suggestions []struct {
		TargetType    string  `json:"targetType"`
		TargetID      int64   `json:"targetId"`
		Amount        float64 `json:"amount"`
		Confidence    float64 `json:"confidence"`
		Description   string  `json:"description"`
		ContraAccount string  `json:"contraAccount"`
	} `json:"suggestions"`
}

var geminiSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"suggestions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"targetType":    {Type: genai.TypeString, Enum: []string{"invoice", "expense", "payable", "manual_account"}},
					"targetId":      {Type: genai.TypeInteger},
					"amount":        {Type: genai.TypeNumber},
					"confidence":    {Type: genai.TypeNumber},
					"description":   {Type: genai.TypeString},
					"contraAccount": {Type: genai.TypeString},
				},
				Required: []string{"targetType", "confidence", "description"},
			},
		},
	},
	Required: []string{"suggestions"},
}

// Suggest asks the model to pick open items or accounts for the transaction.
func (g *GeminiSuggester) Suggest(ctx context.Context, req SuggestionRequest) ([]Suggestion, error) {
	prompt, err := g.prompt(ctx, req)
	if err != nil {
		return nil, err
	}
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: geminiInstruction}}},
			ResponseMIMEType:  "application/json",
			ResponseSchema:    geminiSchema,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reconciliation: gemini: %w", err)
	}
	resp, ok := result.(*genai.GenerateContentResponse)
	if !ok || resp == nil {
		return nil, errors.New("reconciliation: gemini returned no response")
	}
	return parseGeminiAnswer(resp.Text())
}

func parseGeminiAnswer(text string) ([]Suggestion, error) {
	var answer geminiAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &answer); err != nil {
		return nil, fmt.Errorf("reconciliation: decode gemini answer: %w", err)
	}
	out := make([]Suggestion, 0, len(answer.Suggestions))
	for _, s := range answer.Suggestions {
		out = append(out, Suggestion{
			TargetType:    targets.Type(s.TargetType),
			TargetID:      s.TargetID,
			Amount:        decimal.NewFromFloat(s.Amount).Round(2),
			Confidence:    s.Confidence,
			Description:   s.Description,
			ContraAccount: s.ContraAccount,
		})
	}
	return out, nil
}

func (g *GeminiSuggester) prompt(ctx context.Context, req SuggestionRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Transação: %s | valor %s | data %s | tipo %s\n",
		req.Description, req.Amount.StringFixed(2), req.Date.Format("2006-01-02"), req.Type)

	types := []targets.Type{targets.TypeExpense, targets.TypePayable}
	if req.Amount.IsPositive() {
		types = []targets.Type{targets.TypeInvoice}
	}
	if g.items != nil {
		items, err := g.items.ListOpen(ctx, types...)
		if err != nil {
			return "", err
		}
		b.WriteString("Itens em aberto:\n")
		for i, item := range items {
			if i == g.cfg.MaxItems {
				break
			}
			fmt.Fprintf(&b, "- %s #%d %s %s vence %s\n", item.Type, item.ID, item.Counterparty,
				item.Outstanding().StringFixed(2), item.DueDate.Format("2006-01-02"))
		}
	}
	if g.chart != nil {
		chart, err := g.chart.List(ctx)
		if err != nil {
			return "", err
		}
		b.WriteString("Contas analíticas:\n")
		n := 0
		for _, acc := range chart {
			if !acc.Postable() {
				continue
			}
			if n == g.cfg.MaxAccounts {
				break
			}
			fmt.Fprintf(&b, "- %s %s (%s)\n", acc.Code, acc.Name, acc.Type)
			n++
		}
	}
	return b.String(), nil
}
