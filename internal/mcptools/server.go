package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with the IDE tools registered.
func NewMCPServer(svc *IDEService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "jide",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build",
		Description: "Build the project: resolve the classpath, compile the Java sources and convert the classes to DEX. Blocks until the build finishes and returns the stages entered plus the diagnostic of a failure.",
	}, svc.Build)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_build",
		Description: "Start a build in the background and return its job. Poll get_job for the current stage and the outcome.",
	}, svc.StartBuild)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_job",
		Description: "Get a build or extraction job by id: state (idle, running, succeeded, failed), current stage, output text or diagnostic.",
	}, svc.GetJob)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_classes",
		Description: "List the classes of the built DEX in class-table order as dotted names. When nothing was built yet a build is started and the state is not-built.",
	}, svc.ListClasses)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "disassemble",
		Description: "Disassemble the compiled class file of a class into a bytecode listing (constant pool, fields, methods with decoded instructions).",
	}, svc.Disassemble)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "decompile",
		Description: "Decompile the compiled class file of a class back to Java source.",
	}, svc.Decompile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "extract_smali",
		Description: "Disassemble the DEX and return the smali of one class, with a blank line after every instruction.",
	}, svc.ExtractSmali)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_settings",
		Description: "Get the effective project settings: language level and the source, build and classpath directories.",
	}, svc.GetSettings)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_language_level",
		Description: "Set the Java language level (7.0 or 8.0) and save it to jide.yml. Lambdas and method references need 8.0.",
	}, svc.SetLanguageLevel)

	return server
}

// RunStdio runs server on the stdio transport, blocking until stdin is
// closed or ctx is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves server over streamable HTTP on addr until ctx is cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
