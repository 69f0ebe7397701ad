package store

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-extractor/internal/apperr"
)

var _ = Describe("LoadMasterData", func() {
	It("should load the built-in set", func() {
		md, err := DefaultMasterData()
		Expect(err).NotTo(HaveOccurred())
		Expect(md.Companies).To(HaveLen(10))
		Expect(md.Items).To(HaveLen(11))
		Expect(md.Companies[0].Country).To(Equal("India"))
	})

	DescribeTable("rejecting bad documents",
		func(doc string) {
			_, err := LoadMasterData(strings.NewReader(doc))
			Expect(err).To(MatchError(apperr.ErrInvalidInput))
		},
		Entry("short GSTIN", "companies:\n  - name: Acme\n    gstin: 27AAPCA1234\n"),
		Entry("lower-case GSTIN", "companies:\n  - name: Acme\n    gstin: 27aapca1234f1z2\n"),
		Entry("missing name", "companies:\n  - gstin: 27AAPCA1234F1Z2\n"),
		Entry("bad pin code", "companies:\n  - name: Acme\n    gstin: 27AAPCA1234F1Z2\n    pin_code: \"40A072\"\n"),
		Entry("non-numeric HSN", "items:\n  - name: Pipe\n    hsn_sac: ABC\n"),
		Entry("unknown field", "companies:\n  - name: Acme\n    gstin: 27AAPCA1234F1Z2\n    owner: Bob\n"),
		Entry("broken YAML", "companies: [\n"),
	)

	It("should accept an empty document", func() {
		md, err := LoadMasterData(strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(md.Companies).To(BeEmpty())
	})
})

var _ = Describe("Seed", func() {
	var db *BoltDB

	BeforeEach(func() {
		db = openTestDB()
	})

	It("should add every record on first run", func() {
		md, err := DefaultMasterData()
		Expect(err).NotTo(HaveOccurred())

		result, err := db.Seed(md)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(SeedResult{Companies: 10, Items: 11}))

		c, err := db.FindCompanyByGSTIN("27AAPCA1234F1Z2")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name).To(Equal("Apex Nova Pvt Ltd"))
		Expect(c.ID).NotTo(BeEmpty())
		Expect(c.CreatedAt).NotTo(BeZero())

		item, err := db.FindItemByHSN("7214")
		Expect(err).NotTo(HaveOccurred())
		Expect(item.Name).To(Equal("Steel Rods (10mm)"))
	})

	It("should add nothing on a second run", func() {
		md, err := DefaultMasterData()
		Expect(err).NotTo(HaveOccurred())

		_, err = db.Seed(md)
		Expect(err).NotTo(HaveOccurred())
		result, err := db.Seed(md)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(SeedResult{}))

		companies, err := db.ListCompanies()
		Expect(err).NotTo(HaveOccurred())
		Expect(companies).To(HaveLen(10))
	})
})
