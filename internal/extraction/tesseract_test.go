package extraction

import (
	"context"
	"errors"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type runCall struct {
	name string
	args []string
}

type stubRunner struct {
	text  string
	tsv   string
	err   error
	calls []runCall
}

func (s *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, runCall{name: name, args: args})
	if s.err != nil {
		return nil, []byte("tesseract: cannot open input"), s.err
	}
	if args[len(args)-1] == "tsv" {
		return []byte(s.tsv), nil, nil
	}
	return []byte(s.text), nil, nil
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t60\t20\t96.5\tInvoice\n" +
	"5\t1\t1\t1\t1\t2\t80\t10\t30\t20\t88\tNo\n" +
	"short\trow\n"

var _ = Describe("Tesseract", func() {
	var (
		runner *stubRunner
		t      *Tesseract
		rec    *Recognition
		err    error
	)

	BeforeEach(func() {
		runner = &stubRunner{text: "Invoice No: INV-1\n", tsv: sampleTSV}
	})

	JustBeforeEach(func() {
		t = NewTesseract("", WithRunner(runner), WithLanguage("eng+hin"))
		rec, err = t.Recognize(context.Background(), []byte("png"))
	})

	When("tesseract succeeds", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the plain text", func() {
			Expect(rec.Text).To(Equal("Invoice No: INV-1\n"))
		})

		It("should read every confidence including sentinels", func() {
			Expect(rec.Confidences).To(Equal([]float64{-1, 96.5, 88}))
		})

		It("should run the text and TSV passes with the layout settings", func() {
			Expect(runner.calls).To(HaveLen(2))
			Expect(runner.calls[0].name).To(Equal("tesseract"))
			Expect(runner.calls[0].args).To(ContainElements("stdout", "--oem", "3", "--psm", "6", "preserve_interword_spaces=1"))
			Expect(runner.calls[0].args).To(ContainElement("eng+hin"))
			Expect(runner.calls[1].args[len(runner.calls[1].args)-1]).To(Equal("tsv"))
		})

		It("should remove the temporary image", func() {
			_, statErr := os.Stat(runner.calls[0].args[0])
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})
	})

	When("tesseract fails", func() {
		BeforeEach(func() {
			runner.err = errors.New("exit status 1")
		})

		It("should report an unavailable backend with stderr", func() {
			Expect(err).To(MatchError(ErrBackendUnavailable))
			Expect(err.Error()).To(ContainSubstring("cannot open input"))
		})
	})
})
