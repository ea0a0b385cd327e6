package prompt

// Template names accepted by Load. One file per prompt so a run can override
// a single prompt without copying the rest.
const (
	DocumentAnalysis = "document_analysis.md"
	TableAnalysis    = "table_analysis.md"
	AnalystQuestion  = "analyst_question.md"
	MetricExtraction = "metric_extraction.md"
	SectorQuery      = "sector_query.md"
	SectorSynthesis  = "sector_synthesis.md"
	Memorandum       = "ic_memorandum.md"
)

// builtinTemplates maps template name to content.
var builtinTemplates = map[string]string{
	DocumentAnalysis: documentAnalysisTemplate,
	TableAnalysis:    tableAnalysisTemplate,
	AnalystQuestion:  analystQuestionTemplate,
	MetricExtraction: metricExtractionTemplate,
	SectorQuery:      sectorQueryTemplate,
	SectorSynthesis:  sectorSynthesisTemplate,
	Memorandum:       memorandumTemplate,
}

const documentAnalysisTemplate = `Analyze this financial document for an NBFC credit assessment. Return JSON with keys: document_type, period_covered, key_metrics (object), notable_items (array of strings), summary.`

const tableAnalysisTemplate = `Analyze this financial data table (first {{rows}} rows of {{file}}) for an NBFC credit assessment. Return JSON with keys: document_type, period_covered, key_metrics (object), notable_items (array of strings), summary.

{{table}}`

const analystQuestionTemplate = `You are a credit analyst assessing an NBFC. Using only the document context below, answer the question. Return JSON with keys: answer (string), confidence (1-5), key_findings (array of strings), risk_flags (array of strings; empty if none).

Document context:
{{context}}

Question: {{question}}`

const metricExtractionTemplate = `Extract the following financial figures for the subject NBFC from the document analyses below. Amounts in crores; ratios as fractions. Use 0 for any figure the documents do not state.

Document analyses:
{{analyses}}`

const sectorQueryTemplate = `Research the following topic for an NBFC credit assessment and summarize what you find in two or three paragraphs with specifics (numbers, dates, names).

Topic: {{topic}}`

const sectorSynthesisTemplate = `Synthesize the research notes below into a sector outlook for gold-loan NBFC credit assessment: regulatory direction, competitive position, collateral and asset-quality environment, and funding conditions. Be concrete.

{{notes}}`

const memorandumTemplate = `Write an investment committee memorandum for a credit exposure to {{company}}, a gold-loan NBFC. Use only the stage outputs below. Structure: executive summary with a recommendation, business overview, asset quality, financial analysis with the computed ratios, sector context, key risks and mitigants, and conditions precedent. Cite figures from the data.

Stage outputs:
{{stages}}`
