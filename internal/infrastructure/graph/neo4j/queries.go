package neo4j

const (
	lawTitleIndex        = "law_title_fulltext"
	paragraphTextIndex   = "paragraph_text_fulltext"
	subsectionTextIndex  = "subsection_text_fulltext"
	fallbackKeywordScore = 0.5
)

var ensureIndexQueries = []string{
	"CREATE FULLTEXT INDEX " + lawTitleIndex + " IF NOT EXISTS FOR (n:Law) ON EACH [n.title, n.law_id]",
	"CREATE FULLTEXT INDEX " + paragraphTextIndex + " IF NOT EXISTS FOR (n:Paragraph) ON EACH [n.text]",
	"CREATE FULLTEXT INDEX " + subsectionTextIndex + " IF NOT EXISTS FOR (n:Subsection) ON EACH [n.text]",
	"CREATE INDEX law_id_index IF NOT EXISTS FOR (n:Law) ON (n.law_id)",
}

const searchLawsQuery = `
CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
RETURN node.law_id AS law_id,
       node.title AS title,
       node.source_file AS source_file,
       node.effective_date AS effective_date,
       node.publication_date AS publication_date,
       node.enforcing_agency AS enforcing_agency,
       elementId(node) AS node_id,
       score
ORDER BY score DESC
LIMIT $limit`

const searchLawsFallbackQuery = `
MATCH (node:Law)
WHERE toLower(node.title) CONTAINS toLower($query)
RETURN node.law_id AS law_id,
       node.title AS title,
       node.source_file AS source_file,
       node.effective_date AS effective_date,
       node.publication_date AS publication_date,
       node.enforcing_agency AS enforcing_agency,
       elementId(node) AS node_id,
       $score AS score
ORDER BY node.law_id
LIMIT $limit`

// Paragraphs hang off a Law, Part or Head; subsections sit one level lower.
const searchParagraphsQuery = `
CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
OPTIONAL MATCH (law:Law)-[:HAS_PART|HAS_HEAD|HAS_PARAGRAPH*1..3]->(node)
WITH node, score, collect(law)[0] AS law
RETURN node.id AS id,
       node.identifier AS identifier,
       node.text AS text,
       node.full_path AS full_path,
       law.law_id AS law_id,
       law.title AS title,
       elementId(node) AS node_id,
       score
ORDER BY score DESC
LIMIT $limit`

const searchSubsectionsQuery = `
CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
OPTIONAL MATCH (law:Law)-[:HAS_PART|HAS_HEAD|HAS_PARAGRAPH|HAS_SUBSECTION*1..4]->(node)
WITH node, score, collect(law)[0] AS law
RETURN node.id AS id,
       node.identifier AS identifier,
       node.text AS text,
       node.full_path AS full_path,
       law.law_id AS law_id,
       law.title AS title,
       elementId(node) AS node_id,
       score
ORDER BY score DESC
LIMIT $limit`
