// internal/wizard/draft.go
package wizard

import (
	"lendflow/internal/finance"
)

// Channel identifies the contact channel used for applicant verification.
// Exactly one channel is active on a draft at any time.
type Channel string

const (
	ChannelMobile Channel = "mobile"
	ChannelEmail  Channel = "email"
)

// EmploymentType classifies the applicant's income source.
type EmploymentType string

const (
	EmploymentSalaried     EmploymentType = "salaried"
	EmploymentSelfEmployed EmploymentType = "self_employed"
	EmploymentBusiness     EmploymentType = "business"
	EmploymentFreelancer   EmploymentType = "freelancer"
)

// DocumentKind names the documents collected during the wizard.
type DocumentKind string

const (
	DocIdentityProof    DocumentKind = "identity_proof"
	DocAddressProof     DocumentKind = "address_proof"
	DocIncomeProof      DocumentKind = "income_proof"
	DocBankStatement    DocumentKind = "bank_statement"
	DocEmploymentLetter DocumentKind = "employment_letter"
)

// RequiredDocuments lists the kinds an application cannot be submitted
// without. Bank statement and employment letter are optional.
var RequiredDocuments = []DocumentKind{
	DocIdentityProof,
	DocAddressProof,
	DocIncomeProof,
}

// DocumentRef records an attached document. UploadConfirmed is set only
// after the gateway acknowledges the kind in its upload response.
type DocumentRef struct {
	FileName        string `json:"fileName"`
	Size            int64  `json:"size"`
	UploadConfirmed bool   `json:"uploadConfirmed"`
}

type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode,omitempty"`
}

type Personal struct {
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	DateOfBirth string  `json:"dateOfBirth,omitempty"`
	Address     Address `json:"address"`
}

type Employment struct {
	Type          EmploymentType `json:"type"`
	CompanyName   string         `json:"companyName"`
	Designation   string         `json:"designation"`
	MonthlyIncome float64        `json:"monthlyIncome"`
	YearsAtJob    float64        `json:"yearsAtJob,omitempty"`
}

// LoanTerms holds the selected offer. EMI and ProcessingFee are derived
// values: they are only ever written by WithLoanTerms, never set directly.
type LoanTerms struct {
	TypeID        string  `json:"typeId"`
	Amount        float64 `json:"amount"`
	TenureMonths  int     `json:"tenureMonths"`
	Purpose       string  `json:"purpose,omitempty"`
	InterestRate  float64 `json:"interestRate"`
	EMI           int64   `json:"emi"`
	ProcessingFee int64   `json:"processingFee"`
}

type Verification struct {
	Channel     Channel `json:"channel"`
	Destination string  `json:"destination"`
	Verified    bool    `json:"verified"`
}

// Draft is the applicant's in-progress application. It is an immutable
// value type: every With* method returns a modified copy and leaves the
// receiver untouched, so a failed boundary effect can never corrupt the
// state the user sees.
type Draft struct {
	Verification  Verification                 `json:"verification"`
	Personal      Personal                     `json:"personal"`
	Employment    Employment                   `json:"employment"`
	Documents     map[DocumentKind]DocumentRef `json:"documents"`
	Loan          LoanTerms                    `json:"loan"`
	TermsAccepted bool                         `json:"termsAccepted"`
}

// NewDraft starts an empty draft on the given verification channel.
func NewDraft(channel Channel, destination string) Draft {
	return Draft{
		Verification: Verification{Channel: channel, Destination: destination},
		Documents:    map[DocumentKind]DocumentRef{},
	}
}

func (d Draft) clone() Draft {
	docs := make(map[DocumentKind]DocumentRef, len(d.Documents))
	for k, v := range d.Documents {
		docs[k] = v
	}
	d.Documents = docs
	return d
}

// WithChannel switches the active verification channel, resetting the
// verified flag. Only one channel is ever active.
func (d Draft) WithChannel(channel Channel, destination string) Draft {
	next := d.clone()
	next.Verification = Verification{Channel: channel, Destination: destination}
	return next
}

// WithVerified marks the active channel as verified.
func (d Draft) WithVerified() Draft {
	next := d.clone()
	next.Verification.Verified = true
	return next
}

func (d Draft) WithPersonal(p Personal) Draft {
	next := d.clone()
	next.Personal = p
	return next
}

func (d Draft) WithEmployment(e Employment) Draft {
	next := d.clone()
	next.Employment = e
	return next
}

// WithDocument attaches or replaces a document. A fresh attachment always
// starts unconfirmed; confirmation comes from the upload response.
func (d Draft) WithDocument(kind DocumentKind, fileName string, size int64) Draft {
	next := d.clone()
	next.Documents[kind] = DocumentRef{FileName: fileName, Size: size}
	return next
}

// WithoutDocument detaches a document.
func (d Draft) WithoutDocument(kind DocumentKind) Draft {
	next := d.clone()
	delete(next.Documents, kind)
	return next
}

// WithUploadsConfirmed flips UploadConfirmed for the kinds the gateway
// acknowledged.
func (d Draft) WithUploadsConfirmed(confirmed map[DocumentKind]bool) Draft {
	next := d.clone()
	for kind, ok := range confirmed {
		if ref, present := next.Documents[kind]; present && ok {
			ref.UploadConfirmed = true
			next.Documents[kind] = ref
		}
	}
	return next
}

// WithLoanTerms sets the selected loan and re-derives EMI and processing
// fee from amount, tenure and rate. This is the only place the derived
// figures are written.
func (d Draft) WithLoanTerms(typeID string, amount float64, tenureMonths int, purpose string, annualRate, feeRate float64) (Draft, error) {
	schedule, err := finance.Calculate(amount, annualRate, tenureMonths)
	if err != nil {
		return d, err
	}
	fee, err := finance.ProcessingFee(amount, feeRate)
	if err != nil {
		return d, err
	}

	next := d.clone()
	next.Loan = LoanTerms{
		TypeID:        typeID,
		Amount:        amount,
		TenureMonths:  tenureMonths,
		Purpose:       purpose,
		InterestRate:  annualRate,
		EMI:           schedule.EMI,
		ProcessingFee: fee,
	}
	return next, nil
}

func (d Draft) WithTermsAccepted(accepted bool) Draft {
	next := d.clone()
	next.TermsAccepted = accepted
	return next
}

// RequiredUploadsConfirmed reports whether every required document is
// attached and acknowledged by the gateway.
func (d Draft) RequiredUploadsConfirmed() bool {
	for _, kind := range RequiredDocuments {
		ref, ok := d.Documents[kind]
		if !ok || !ref.UploadConfirmed {
			return false
		}
	}
	return true
}
