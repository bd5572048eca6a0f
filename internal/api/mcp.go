package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/stockai/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   InvoiceStore
	Reorder ReorderAnalyzer
	Ingest  Ingester // optional; if nil, process_pending returns an error
}

// NewMCPServer creates an MCP server with the stockai tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Ingest != nil {
		deps.Ingest = Serialize(deps.Ingest)
	}

	s := server.NewMCPServer(
		"stockai",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("stockai: purchase history read from supplier invoices, with reorder points per product."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_entities",
			mcp.WithDescription("List the businesses that have stored invoices."),
		),
		mcpListEntities(deps),
	)

	s.AddTool(
		mcp.NewTool("list_invoice_lines",
			mcp.WithDescription("List stored invoice lines of a business, optionally filtered."),
			mcp.WithString("entity", mcp.Description("Entity key as returned by list_entities"), mcp.Required()),
			mcp.WithString("product", mcp.Description("Only lines of this normalized product name")),
			mcp.WithString("invoice", mcp.Description("Only lines of this invoice number")),
			mcp.WithString("from", mcp.Description("Earliest issue date (YYYY-MM-DD or DD/MM/YYYY)")),
			mcp.WithString("to", mcp.Description("Latest issue date (YYYY-MM-DD or DD/MM/YYYY)")),
		),
		mcpListInvoiceLines(deps),
	)

	s.AddTool(
		mcp.NewTool("reorder_points",
			mcp.WithDescription("Estimate daily demand, safety stock and reorder point per product of a business."),
			mcp.WithString("entity", mcp.Description("Entity key"), mcp.Required()),
		),
		mcpReorderPoints(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_invoice_line",
			mcp.WithDescription("Delete one stored invoice line by id."),
			mcp.WithString("entity", mcp.Description("Entity key"), mcp.Required()),
			mcp.WithNumber("id", mcp.Description("Line id"), mcp.Required()),
		),
		mcpDeleteInvoiceLine(deps),
	)

	s.AddTool(
		mcp.NewTool("process_pending",
			mcp.WithDescription("Read every pending invoice PDF, store its lines and archive it."),
		),
		mcpProcessPending(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"stockai://pending",
			"Pending Invoices",
			mcp.WithResourceDescription("Number of invoice PDFs waiting to be processed"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePending(deps),
	)

	return s
}

func mcpListEntities(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entities, err := deps.Store.Entities()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list entities: %v", err)), nil
		}
		return mcpJSON(entities), nil
	}
}

func mcpListInvoiceLines(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entity, err := req.RequireString("entity")
		if err != nil {
			return mcpError("entity is required"), nil
		}

		f := storage.Filter{
			Product: req.GetString("product", ""),
			Invoice: req.GetString("invoice", ""),
		}
		if f.From, err = parseDateParam(req.GetString("from", "")); err != nil {
			return mcpError(fmt.Sprintf("invalid from date: %v", err)), nil
		}
		if f.To, err = parseDateParam(req.GetString("to", "")); err != nil {
			return mcpError(fmt.Sprintf("invalid to date: %v", err)), nil
		}

		lines, err := deps.Store.Query(entity, f)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list invoice lines: %v", err)), nil
		}
		return mcpJSON(lines), nil
	}
}

func mcpReorderPoints(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entity, err := req.RequireString("entity")
		if err != nil {
			return mcpError("entity is required"), nil
		}

		recs, err := deps.Reorder.Compute(ctx, entity)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to compute reorder points: %v", err)), nil
		}
		return mcpJSON(recs), nil
	}
}

func mcpDeleteInvoiceLine(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entity, err := req.RequireString("entity")
		if err != nil {
			return mcpError("entity is required"), nil
		}
		id := req.GetInt("id", 0)
		if id <= 0 {
			return mcpError("id must be a positive line id"), nil
		}

		n, err := deps.Store.Delete(entity, int64(id))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to delete line: %v", err)), nil
		}
		if n == 0 {
			return mcpText(fmt.Sprintf("No line %d in %s", id, entity)), nil
		}
		return mcpText(fmt.Sprintf("Deleted line %d from %s", id, entity)), nil
	}
}

func mcpProcessPending(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Ingest == nil {
			return mcpError("ingestion not available: no oracle configured"), nil
		}

		report, err := deps.Ingest.Run(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("ingestion failed: %v", err)), nil
		}
		return mcpText(report.Summary), nil
	}
}

func mcpResourcePending(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Ingest == nil {
			return nil, fmt.Errorf("ingestion not available")
		}
		n, err := deps.Ingest.Pending()
		if err != nil {
			return nil, fmt.Errorf("failed to count pending invoices: %w", err)
		}

		b, err := json.Marshal(map[string]int{"pending": n})
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
