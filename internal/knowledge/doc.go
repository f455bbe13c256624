// Package knowledge is the tool façade over the retrieval pipeline.
//
// Each exported Service method maps one user intent (adding product or
// KAK/TOR documents, retrieving, rewriting metadata, rebuilding embeddings)
// onto rag.Pipeline calls. The MCP and HTTP surfaces expose these methods
// one to one.
//
// Directory layout comes from config.KnowledgeConfig:
//
//	knowledge_base_path     product PDFs
//	kak_tor_base_path       KAK/TOR PDFs
//	kak_tor_md_base_path    Markdown exports of KAK/TOR PDFs
//	summaries_md_base_path  Markdown summaries
//	templates_base_path     <name>.txt prompt instructions
package knowledge
