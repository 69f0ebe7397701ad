package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

type stubModel struct {
	reply  string
	err    error
	closed bool
}

func (s *stubModel) Complete(ctx context.Context, image []byte) (string, error) {
	return s.reply, s.err
}

func (s *stubModel) Close() error {
	s.closed = true
	return nil
}

const modelReply = "Here is the data:\n```json\n" + `{
  "vendor": {"name": "Acme Components Pvt Ltd", "gstin": "29ABCDE1234F1Z5", "address": null},
  "customer": "Globex Corporation",
  "invoice_number": "INV-2025-001",
  "invoice_date": "07/05/2025",
  "line_items": [
    {"description": "PVC Pipes", "hsn_sac": "3917", "quantity": 10, "rate": 1000.00, "tax_percentage": 18, "tax_amount": 1800.00, "amount": 10000.00}
  ],
  "subtotal": 10000.00,
  "tax_amount": "1,800.00",
  "discount": null,
  "total_amount": 11800.00,
  "terms": null
}` + "\n```"

var _ = Describe("decodeResponse", func() {
	DescribeTable("rejecting replies",
		func(reply string, expected error) {
			_, err := decodeResponse(reply)
			Expect(err).To(MatchError(expected))
		},
		Entry("empty", "", ErrEmptyResponse),
		Entry("only a fence", "```json\n```", ErrEmptyResponse),
		Entry("prose", "I could not read this invoice.", ErrMalformedResponse),
		Entry("a top-level array", "[1, 2]", ErrMalformedResponse),
		Entry("broken JSON", `{"vendor": }`, ErrMalformedResponse),
	)

	It("should keep numbers as json.Number", func() {
		raw, err := decodeResponse(`{"subtotal": 117660.00}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(raw["subtotal"]).To(Equal(json.Number("117660.00")))
	})
})

var _ = Describe("GenerativeExtractor", func() {
	var (
		docs      *stubDocs
		model     *stubModel
		extractor *GenerativeExtractor
	)

	BeforeEach(func() {
		docs = &stubDocs{data: []byte("png bytes")}
		model = &stubModel{reply: modelReply}
	})

	JustBeforeEach(func() {
		var err error
		extractor, err = NewGenerativeExtractor(docs, model)
		Expect(err).NotTo(HaveOccurred())
	})

	When("the model answers with JSON", func() {
		It("should normalize the reply", func() {
			inv, err := extractor.Extract(context.Background(), "invoice.png")
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Vendor.Name).To(Equal("Acme Components Pvt Ltd"))
			Expect(inv.Vendor.Address).To(BeEmpty())
			Expect(inv.Customer.Name).To(Equal("Globex Corporation"))
			Expect(inv.InvoiceDate).To(Equal("2025-07-05"))
			Expect(inv.LineItems).To(HaveLen(1))
			Expect(inv.LineItems[0].Amount.String()).To(Equal("10000"))
			Expect(inv.TaxAmount.String()).To(Equal("1800"))
			Expect(inv.Discount.String()).To(Equal("0"))
			Expect(inv.Terms).To(Equal("Immediate"))
		})

		It("should report a fixed confidence", func() {
			inv, err := extractor.Extract(context.Background(), "invoice.png")
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Confidence).To(Equal(GenerativeConfidence))
		})
	})

	When("the reply has the wrong shape", func() {
		BeforeEach(func() {
			model.reply = `{"vendor": 42, "line_items": "none"}`
		})

		It("should fail with a malformed response", func() {
			_, err := extractor.Extract(context.Background(), "invoice.png")
			Expect(err).To(MatchError(ErrMalformedResponse))
			Expect(IsFailure(err)).To(BeTrue())
		})
	})

	When("the reply is empty", func() {
		BeforeEach(func() {
			model.reply = "   "
		})

		It("should fail with an empty response", func() {
			_, err := extractor.Extract(context.Background(), "invoice.png")
			Expect(err).To(MatchError(ErrEmptyResponse))
		})
	})

	When("the model cannot be reached", func() {
		BeforeEach(func() {
			model.err = errors.New("connection refused")
		})

		It("should fail with an unavailable backend", func() {
			_, err := extractor.Extract(context.Background(), "invoice.png")
			Expect(err).To(MatchError(ErrBackendUnavailable))
			Expect(err.Error()).To(ContainSubstring("connection refused"))
		})
	})

	It("should close the model", func() {
		Expect(extractor.Close()).To(Succeed())
		Expect(model.closed).To(BeTrue())
	})
})

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		ollama *Ollama
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		ollama, err = NewOllama(server.URL(), "llava")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	When("the server answers", func() {
		var received ollamaChatRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]any{"role": "assistant", "content": `{"invoice_number": "INV-1"}`},
					"done":    true,
				}),
			))
		})

		It("should return the message content", func() {
			reply, err := ollama.Complete(context.Background(), []byte("png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal(`{"invoice_number": "INV-1"}`))
		})

		It("should request JSON output with the image attached", func() {
			_, err := ollama.Complete(context.Background(), []byte("png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(received.Format).To(Equal("json"))
			Expect(received.Model).To(Equal("llava"))
			Expect(received.Messages).To(HaveLen(2))
			Expect(received.Messages[1].Images).To(Equal([]string{"cG5n"}))
		})
	})

	When("the server returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("should include the status and body", func() {
			_, err := ollama.Complete(context.Background(), []byte("png"))
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(err).To(MatchError(ContainSubstring("model not loaded")))
		})
	})
})

var _ = Describe("OpenAI", func() {
	var (
		server *ghttp.Server
		model  *OpenAI
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		model, err = NewOpenAI("test-key", "", server.URL()+"/v1")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	When("the API answers", func() {
		var received map[string]any

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				func(w http.ResponseWriter, r *http.Request) {
					Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"id":     "chatcmpl-1",
					"object": "chat.completion",
					"model":  "gpt-4o",
					"choices": []map[string]any{{
						"index":         0,
						"finish_reason": "stop",
						"message":       map[string]any{"role": "assistant", "content": `{"invoice_number": "INV-1"}`},
					}},
				}),
			))
		})

		It("should return the first choice", func() {
			reply, err := model.Complete(context.Background(), []byte("png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal(`{"invoice_number": "INV-1"}`))
		})

		It("should ask for a JSON object from gpt-4o", func() {
			_, err := model.Complete(context.Background(), []byte("png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(received["model"]).To(Equal("gpt-4o"))
			Expect(received["max_tokens"]).To(BeNumerically("==", 4000))
			Expect(received["response_format"]).To(HaveKeyWithValue("type", "json_object"))
		})
	})

	It("should require an API key", func() {
		_, err := NewOpenAI("", "", "")
		Expect(err).To(HaveOccurred())
	})
})

var _ = DescribeTable("Config.ResolveStrategy",
	func(cfg Config, strategy, model string) {
		s, m := cfg.ResolveStrategy()
		Expect(s).To(Equal(strategy))
		Expect(m).To(Equal(model))
	},
	Entry("auto with an OpenAI key", Config{Strategy: StrategyAuto, OpenAIKey: "k"}, StrategyGenerative, "openai"),
	Entry("auto without keys", Config{Strategy: StrategyAuto}, StrategyPattern, ""),
	Entry("empty behaves like auto", Config{}, StrategyPattern, ""),
	Entry("explicit pattern ignores keys", Config{Strategy: StrategyPattern, OpenAIKey: "k"}, StrategyPattern, ""),
	Entry("generative with a chosen model", Config{Strategy: StrategyGenerative, Model: "ollama"}, StrategyGenerative, "ollama"),
	Entry("generative defaults to openai", Config{Strategy: StrategyGenerative}, StrategyGenerative, "openai"),
)
