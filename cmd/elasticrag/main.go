package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"elasticrag/internal/adapter/httpapi"
	"elasticrag/internal/di"
	"elasticrag/internal/domain"
	"elasticrag/internal/infra/config"
	"elasticrag/internal/infra/logger"
	"elasticrag/internal/infra/otel"
	"elasticrag/internal/usecase"
	"elasticrag/internal/usecase/retrieval"
)

var version = "dev"

var (
	// Global flags
	userFlag       string
	collectionFlag string
	modelFlag      string
	forceFlag      bool

	// add flags
	docIDFlag    string
	docNameFlag  string
	filePathFlag string
	metadataFlag string

	// search flags
	sizeFlag   int
	filterFlag string

	// register-model flags
	serviceFlag    string
	settingsFlag   string
	dimensionsFlag int

	// list flags
	offsetFlag int
	limitFlag  int
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "elasticrag",
	Short:         "Multi-tenant RAG on an Elasticsearch-compatible store",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Register the default user and model from the environment",
	RunE:  runSetup,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server",
	RunE:  runServe,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username> <api-key>",
	Short: "Create a user or rotate its api key",
	Args:  cobra.ExactArgs(2),
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users, newest first",
	RunE:  runUserList,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage embedding models",
}

var modelRegisterCmd = &cobra.Command{
	Use:   "register <model-id>",
	Short: "Register a model and provision its store resources",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelRegister,
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered models",
	RunE:  runModelList,
}

var modelDeleteCmd = &cobra.Command{
	Use:   "delete <model-id>",
	Short: "Delete a model's store resources",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelDelete,
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List a user's collections",
	RunE:  runCollections,
}

var collectionDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop a collection and its backing index",
	RunE:  runCollectionDrop,
}

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add a document to a collection from text or --file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAdd,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a hybrid query against a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage documents in a collection",
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, newest first",
	RunE:  runDocList,
}

var docGetCmd = &cobra.Command{
	Use:   "get <document-id>",
	Short: "Print a document's chunks in order",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocGet,
}

var docDeleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete every chunk of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocDelete,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "username (defaults to RAG_DEFAULT_USER)")
	rootCmd.PersistentFlags().StringVarP(&collectionFlag, "collection", "c", "", "collection name (defaults to RAG_DEFAULT_COLLECTION)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "model id (defaults to RAG_DEFAULT_MODEL)")
	rootCmd.PersistentFlags().BoolVar(&forceFlag, "force", false, "force recreate resources")

	addCmd.Flags().StringVar(&docIDFlag, "id", "", "document id (random uuid when empty)")
	addCmd.Flags().StringVar(&docNameFlag, "name", "", "document display name")
	addCmd.Flags().StringVarP(&filePathFlag, "file", "f", "", "read content from a file (txt, md, pdf, docx, xlsx)")
	addCmd.Flags().StringVar(&metadataFlag, "metadata", "", "document metadata as a JSON object")

	searchCmd.Flags().IntVarP(&sizeFlag, "size", "n", 10, "number of results")
	searchCmd.Flags().StringVar(&filterFlag, "filter", "", "metadata filter as a JSON object")

	modelRegisterCmd.Flags().StringVar(&serviceFlag, "service", "hugging_face", "inference service (hugging_face or openai)")
	modelRegisterCmd.Flags().StringVar(&settingsFlag, "settings", "", "service settings as a JSON object")
	modelRegisterCmd.Flags().IntVar(&dimensionsFlag, "dimensions", 0, "embedding dimensions")

	for _, cmd := range []*cobra.Command{userListCmd, docListCmd} {
		cmd.Flags().IntVar(&offsetFlag, "offset", 0, "pagination offset")
		cmd.Flags().IntVar(&limitFlag, "limit", 100, "pagination limit")
	}

	usersCmd.AddCommand(userAddCmd, userListCmd, userDeleteCmd)
	modelsCmd.AddCommand(modelRegisterCmd, modelListCmd, modelDeleteCmd)
	collectionsCmd.AddCommand(collectionDropCmd)
	docsCmd.AddCommand(docListCmd, docGetCmd, docDeleteCmd)
	rootCmd.AddCommand(setupCmd, serveCmd, usersCmd, modelsCmd, collectionsCmd, addCmd, searchCmd, docsCmd)
}

// bootstrap loads config and wires the application for one command run.
func bootstrap() (*config.Config, *di.ApplicationComponents, error) {
	cfg := config.Load()
	log := logger.NewWithOTel(cfg.OTelEnabled)
	components, err := di.NewApplicationComponents(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, components, nil
}

func resolve(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, app, err := bootstrap()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if cfg.DefaultAPIKey == "" {
		return fmt.Errorf("RAG_DEFAULT_API_KEY is required for setup")
	}
	if err := app.Client.Users.AddUser(ctx, cfg.DefaultUser, cfg.DefaultAPIKey, nil); err != nil {
		return err
	}
	fmt.Printf("user %q ready\n", cfg.DefaultUser)

	if cfg.DefaultModel == "" {
		return nil
	}
	model := domain.ModelConfig{
		ModelID: cfg.DefaultModel,
		Service: domain.ServiceKind(cfg.EmbeddingService),
		ServiceSettings: map[string]any{
			"url":     cfg.EmbeddingURL,
			"api_key": cfg.EmbeddingAPIKey,
		},
		Dimensions: cfg.EmbeddingDimensions,
	}
	if model.Service == domain.ServiceOpenAI {
		model.ServiceSettings["model_id"] = cfg.DefaultModel
	}
	if err := app.Client.Models.Register(ctx, model, cfg.ForceRecreate); err != nil {
		return err
	}
	fmt.Printf("model %q ready\n", cfg.DefaultModel)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := logger.NewWithOTel(cfg.OTelEnabled)

	ctx := context.Background()
	shutdown, err := otel.InitProvider(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	app, err := di.NewApplicationComponents(cfg, log)
	if err != nil {
		return err
	}

	app.Worker.Start()
	defer app.Worker.Stop()

	e := httpapi.NewServer(app.Client, app.Worker, app.Store)

	go func() {
		addr := ":" + cfg.Port
		log.Info("server_starting", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	_, app, err := bootstrap()
	if err != nil {
		return err
	}
	if err := app.Client.Users.AddUser(cmd.Context(), args[0], args[1], nil); err != nil {
		return err
	}
	fmt.Printf("user %q ready\n", args[0])
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	_, app, err := bootstrap()
	if err != nil {
		return err
	}
	users, total, err := app.Client.Users.ListUsers(cmd.Context(), offsetFlag, limitFlag)
	if err != nil {
		return err
	}
	for _, u := range users {
		lastLogin := "never"
		if u.LastLogin != nil {
			lastLogin = u.LastLogin.Format(time.RFC3339)
		}
		fmt.Printf("%s\tcreated=%s\tlast_login=%s\n", u.Username, u.CreatedAt.Format(time.RFC3339), lastLogin)
	}
	fmt.Printf("total: %d\n", total)
	return nil
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	_, app, err := bootstrap()
	if err != nil {
		return err
	}
	deleted, err := app.Client.Users.DeleteUser(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("user %q not found", args[0])
	}
	fmt.Printf("user %q deleted\n", args[0])
	return nil
}

func runModelRegister(cmd *cobra.Command, args []string) error {
	cfg, app, err := bootstrap()
	if err != nil {
		return err
	}

	settings := map[string]any{}
	if settingsFlag != "" {
		if err := json.Unmarshal([]byte(settingsFlag), &settings); err != nil {
			return fmt.Errorf("invalid --settings: %w", err)
		}
	}
	if _, ok := settings["url"]; !ok && cfg.EmbeddingURL != "" {
		settings["url"] = cfg.EmbeddingURL
	}
	if _, ok := settings["api_key"]; !ok && cfg.EmbeddingAPIKey != "" {
		settings["api_key"] = cfg.EmbeddingAPIKey
	}
	dimensions := dimensionsFlag
	if dimensions == 0 {
		dimensions = cfg.EmbeddingDimensions
	}

	model := domain.ModelConfig{
		ModelID:         args[0],
		Service:         domain.ServiceKind(serviceFlag),
		ServiceSettings: settings,
		Dimensions:      dimensions,
	}
	if err := app.Client.Models.Register(cmd.Context(), model, forceFlag); err != nil {
		return err
	}
	fmt.Printf("model %q ready (%d dimensions)\n", args[0], dimensions)
	return nil
}

func runModelList(cmd *cobra.Command, args []string) error {
	_, app, err := bootstrap()
	if err != nil {
		return err
	}
	models, err := app.Client.Models.List(cmd.Context())
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Printf("%s\tservice=%s\tdimensions=%d\n", m.ModelID, m.Service, m.Dimensions)
	}
	return nil
}

func runModelDelete(cmd *cobra.Command, args []string) error {
	_, app, err := bootstrap()
	if err != nil {
		return err
	}
	if err := app.Client.Models.Delete(cmd.Context(), args[0], forceFlag); err != nil {
		return err
	}
	fmt.Printf("model %q deleted\n", args[0])
	return nil
}

func runCollections(cmd *cobra.Command, args []string) error {
	cfg, app, err := bootstrap()
	if err != nil {
		return err
	}
	username := resolve(userFlag, cfg.DefaultUser)
	infos, err := app.Client.ListCollections(cmd.Context(), username)
	if err != nil {
		return err
	}
	for _, info := range infos {
		model := info.ModelID
		if model == "" {
			model = "-"
		}
		fmt.Printf("%s\tmodel=%s\thealth=%s\tdocs=%d\n", info.Name, model, info.Health, info.DocCount)
	}
	return nil
}

func runCollectionDrop(cmd *cobra.Command, args []string) error {
	cfg, app, err := bootstrap()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	coll, err := openCollection(ctx, cfg, app)
	if err != nil {
		return err
	}
	if err := coll.Drop(ctx); err != nil {
		return err
	}
	fmt.Printf("collection %q dropped\n", coll.Name)
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, app, err := bootstrap()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	coll, err := openCollection(ctx, cfg, app)
	if err != nil {
		return err
	}

	input := usecase.AddDocumentInput{
		DocumentID: docIDFlag,
		Name:       docNameFlag,
	}
	if metadataFlag != "" {
		if err := json.Unmarshal([]byte(metadataFlag), &input.Metadata); err != nil {
			return fmt.Errorf("invalid --metadata: %w", err)
		}
	}
	switch {
	case filePathFlag != "":
		data, err := os.ReadFile(filePathFlag)
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", filePathFlag, err)
		}
		name := filepath.Base(filePathFlag)
		input.Source = usecase.FileContent{Data: data, Name: name}
		if input.Name == "" {
			input.Name = name
		}
	case len(args) == 1:
		input.Source = usecase.TextContent{Text: args[0]}
	default:
		return fmt.Errorf("provide text as an argument or --file")
	}

	result, err := coll.Add(ctx, input)
	if err != nil {
		return err
	}
	fmt.Printf("document %s: %d chunks written, %d stale removed\n",
		result.DocumentID, result.ChunkCount, result.StaleDeleted)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, app, err := bootstrap()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	coll, err := openCollection(ctx, cfg, app)
	if err != nil {
		return err
	}

	req := retrieval.Request{Query: args[0], Size: sizeFlag}
	if filterFlag != "" {
		if err := json.Unmarshal([]byte(filterFlag), &req.Filter); err != nil {
			return fmt.Errorf("invalid --filter: %w", err)
		}
	}

	resp, err := coll.Search(ctx, req)
	if err != nil {
		return err
	}
	if resp.Degraded {
		fmt.Fprintln(os.Stderr, "warning: partial results (one retrieval leg unavailable)")
	}
	for i, r := range resp.Results {
		fmt.Printf("%d. [%.4f] %s (%s)\n   %s\n", i+1, r.Score, r.DocumentName, r.ChunkID, r.Content)
	}
	return nil
}

func runDocList(cmd *cobra.Command, args []string) error {
	cfg, app, err := bootstrap()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	coll, err := openCollection(ctx, cfg, app)
	if err != nil {
		return err
	}
	docs, total, err := coll.ListDocuments(ctx, offsetFlag, limitFlag)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		fmt.Printf("%s\t%s\tchunks=%d\tadded=%s\n", doc.ID, doc.Name, doc.ChunkCount, doc.AddedAt.Format(time.RFC3339))
	}
	fmt.Printf("total: %d\n", total)
	return nil
}

func runDocGet(cmd *cobra.Command, args []string) error {
	cfg, app, err := bootstrap()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	coll, err := openCollection(ctx, cfg, app)
	if err != nil {
		return err
	}
	chunks, err := coll.GetDocument(ctx, args[0])
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		fmt.Printf("--- %s (ordinal %d)\n%s\n", chunk.ID, chunk.Ordinal, chunk.Content)
	}
	return nil
}

func runDocDelete(cmd *cobra.Command, args []string) error {
	cfg, app, err := bootstrap()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	coll, err := openCollection(ctx, cfg, app)
	if err != nil {
		return err
	}
	deleted, err := coll.DeleteDocument(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%d chunks deleted\n", deleted)
	return nil
}

func openCollection(ctx context.Context, cfg *config.Config, app *di.ApplicationComponents) (*usecase.Collection, error) {
	username := resolve(userFlag, cfg.DefaultUser)
	collection := resolve(collectionFlag, cfg.DefaultCollection)
	model := resolve(modelFlag, cfg.DefaultModel)
	return app.Client.Collection(ctx, username, collection, model, forceFlag || cfg.ForceRecreate)
}
