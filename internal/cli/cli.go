// Package cli provides the command line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/revscope/internal/assemble"
	"github.com/temirov/revscope/internal/config"
	"github.com/temirov/revscope/internal/cost"
	"github.com/temirov/revscope/internal/ignore"
	"github.com/temirov/revscope/internal/selection"
	"github.com/temirov/revscope/internal/services/clipboard"
	"github.com/temirov/revscope/internal/services/watch"
	"github.com/temirov/revscope/internal/tree"
	"github.com/temirov/revscope/internal/types"
	"github.com/temirov/revscope/internal/utils"
	"github.com/temirov/revscope/internal/vcs"
	"github.com/temirov/revscope/internal/webui"
)

const (
	rootUse              = "revscope"
	rootShortDescription = "revscope assembles a bounded review context from two file universes"
	rootLongDescription  = `revscope renders the files changed between two version-control refs and the
full project tree as checkbox trees, aggregates a token-cost estimate over the
checked selection, and assembles diffs, file contents, and a directory map
into one review-context document.`

	changesUse              = "changes"
	changesShortDescription = "list the files changed between the target and source refs"
	assembleUse             = "assemble"
	assembleShort           = "render the review-context document for the current selection"
	serveUse                = "serve"
	serveShortDescription   = "host the checkbox trees in a local web interface"
	versionUse              = "version"
	versionShortDescription = "print the application version"
	initUse                 = "init"
	initShortDescription    = "write a default configuration file"

	configFlagName       = "config"
	rootFlagName         = "root"
	targetFlagName       = "target"
	sourceFlagName       = "source"
	logLevelFlagName     = "log-level"
	instructionsFlagName = "instructions"
	addFlagName          = "add"
	copyFlagName         = "copy"
	listenFlagName       = "listen"
	watchFlagName        = "watch"
	globalFlagName       = "global"
	forceFlagName        = "force"

	configFlagDescription       = "configuration file path"
	rootFlagDescription         = "repository root directory"
	targetFlagDescription       = "target ref (the branch under review)"
	sourceFlagDescription       = "source ref (the base of the comparison)"
	logLevelFlagDescription     = "log level"
	instructionsFlagDescription = "free-text instructions included in the document"
	addFlagDescription          = "supplementary project file to include (repeatable)"
	copyFlagDescription         = "copy the rendered document to the system clipboard"
	listenFlagDescription       = "listen address for the web interface"
	watchFlagDescription        = "invalidate cost estimates when files change on disk"
	globalFlagDescription       = "write the global configuration instead of the local one"
	forceFlagDescription        = "overwrite an existing configuration file"

	defaultSourceRef     = "main"
	defaultListenAddress = "127.0.0.1:8642"
	versionTemplate      = "revscope version: %s\n"

	noChangesMessageFormat  = "no changes between %s and %s\n"
	allHiddenMessageFormat  = "%d changed files, all hidden by ignore patterns\n"
	changeLineFormat        = "%-8s  %s  (%s)\n"
	changeSummaryFormat     = "%d files, %s tokens selected\n"
	assembledSummaryFormat  = "assembled review context: %d members, %s tokens"
	copiedToClipboardNotice = "document copied to clipboard"
	configWrittenFormat     = "configuration written to %s\n"
)

// Execute runs the revscope application.
func Execute() error {
	return createRootCommand().Execute()
}

// runtimeOptions carries the persistent flag values shared by every command.
type runtimeOptions struct {
	configPath     string
	repositoryRoot string
	targetRef      string
	sourceRef      string
	logLevel       string
}

// createRootCommand builds the root Cobra command.
func createRootCommand() *cobra.Command {
	var options runtimeOptions

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}
	rootCommand.PersistentFlags().StringVar(&options.configPath, configFlagName, "", configFlagDescription)
	rootCommand.PersistentFlags().StringVar(&options.repositoryRoot, rootFlagName, ".", rootFlagDescription)
	rootCommand.PersistentFlags().StringVar(&options.targetRef, targetFlagName, "", targetFlagDescription)
	rootCommand.PersistentFlags().StringVar(&options.sourceRef, sourceFlagName, "", sourceFlagDescription)
	rootCommand.PersistentFlags().StringVar(&options.logLevel, logLevelFlagName, "", logLevelFlagDescription)
	rootCommand.AddCommand(
		createChangesCommand(&options),
		createAssembleCommand(&options),
		createServeCommand(&options),
		createVersionCommand(),
		createInitCommand(&options),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// engineComponents is the wired selection engine shared by the commands.
type engineComponents struct {
	configuration  config.ApplicationConfiguration
	logger         *zap.Logger
	repositoryRoot string
	targetRef      string
	sourceRef      string
	client         *vcs.Client
	estimator      *cost.Estimator
	coordinator    *selection.Coordinator
	collector      *assemble.Collector
}

// blobFallbackSource serves cost estimation for paths that cannot be read
// from disk, such as deleted change-set members, from the target ref's blob.
type blobFallbackSource struct {
	client         *vcs.Client
	repositoryRoot string
	targetRef      string
}

func (source *blobFallbackSource) Content(absolutePath string) (string, bool) {
	relativePath := utils.RelativePathOrSelf(absolutePath, source.repositoryRoot)
	if relativePath == "." || strings.HasPrefix(relativePath, "..") {
		return "", false
	}
	blobContent := source.client.ReadBlob(context.Background(), source.targetRef, relativePath)
	return blobContent, blobContent != ""
}

// buildEngine loads configuration, overlays the flag values, and wires the
// trees, estimator, coordinator and collector over the repository root.
func buildEngine(options *runtimeOptions) (*engineComponents, error) {
	repositoryRoot, absoluteError := filepath.Abs(options.repositoryRoot)
	if absoluteError != nil {
		return nil, fmt.Errorf("resolve repository root %s: %w", options.repositoryRoot, absoluteError)
	}

	configuration, configurationError := config.LoadApplicationConfiguration(config.LoadOptions{
		WorkingDirectory: repositoryRoot,
		ExplicitFilePath: options.configPath,
	})
	if configurationError != nil {
		return nil, configurationError
	}

	logLevel := configuration.LogLevel
	if options.logLevel != "" {
		logLevel = options.logLevel
	}
	logger, loggerError := utils.NewApplicationLogger(logLevel)
	if loggerError != nil {
		return nil, loggerError
	}

	client, openError := vcs.Open(repositoryRoot)
	if openError != nil {
		return nil, openError
	}

	targetRef := configuration.TargetRef
	if options.targetRef != "" {
		targetRef = options.targetRef
	}
	if targetRef == "" {
		targetRef = client.CurrentBranch()
	}
	sourceRef := configuration.SourceRef
	if options.sourceRef != "" {
		sourceRef = options.sourceRef
	}
	if sourceRef == "" {
		sourceRef = defaultSourceRef
	}

	estimator := cost.NewEstimator(&blobFallbackSource{
		client:         client,
		repositoryRoot: repositoryRoot,
		targetRef:      targetRef,
	})
	costSource := tree.RootedCostSource{Root: repositoryRoot, Source: estimator}
	ruleSet := ignore.Compile(configuration.EnabledIgnorePatterns())
	coordinator := selection.NewCoordinator(
		client,
		tree.NewChangeSetTree(ruleSet, costSource),
		tree.NewProjectTree(repositoryRoot, ruleSet, costSource),
		estimator,
	)

	return &engineComponents{
		configuration:  configuration,
		logger:         logger,
		repositoryRoot: repositoryRoot,
		targetRef:      targetRef,
		sourceRef:      sourceRef,
		client:         client,
		estimator:      estimator,
		coordinator:    coordinator,
		collector:      assemble.NewCollector(repositoryRoot, client, estimator),
	}, nil
}

// reviewDocumentBuilder assembles the coordinator's current selection into a
// renderable document.
type reviewDocumentBuilder struct {
	engine              *engineComponents
	defaultInstructions string
}

// BuildDocument collects diffs and contents for the checked selection. The
// supplementary set is the project-tree selection minus the change-set
// members already carried as diffs.
func (builder *reviewDocumentBuilder) BuildDocument(ctx context.Context, instructions string) (assemble.Document, error) {
	if instructions == "" {
		instructions = builder.defaultInstructions
	}
	changeEntries := builder.engine.coordinator.CheckedChangeEntries()
	changePathSet := make(map[types.PathEntry]struct{}, len(changeEntries))
	for _, changeEntry := range changeEntries {
		changePathSet[changeEntry.Path] = struct{}{}
	}
	var supplementaryPaths []types.PathEntry
	for _, projectPath := range builder.engine.coordinator.ProjectTreePaths() {
		if _, isChangeMember := changePathSet[projectPath]; isChangeMember {
			continue
		}
		supplementaryPaths = append(supplementaryPaths, projectPath)
	}
	return builder.engine.collector.Collect(ctx, assemble.CollectInput{
		TargetRef:     builder.engine.targetRef,
		SourceRef:     builder.engine.sourceRef,
		Instructions:  instructions,
		CombinedPaths: builder.engine.coordinator.CombinedPaths(),
		Changes:       changeEntries,
		Supplementary: supplementaryPaths,
	}), nil
}

// createChangesCommand returns the changes subcommand.
func createChangesCommand(options *runtimeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   changesUse,
		Short: changesShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			engine, engineError := buildEngine(options)
			if engineError != nil {
				return engineError
			}
			defer engine.logger.Sync()

			engine.coordinator.Reload(command.Context(), engine.targetRef, engine.sourceRef)
			totalEntries, visibleEntries := engine.coordinator.ChangeTreeCounts()
			if totalEntries == 0 {
				fmt.Fprintf(command.OutOrStdout(), noChangesMessageFormat, engine.targetRef, engine.sourceRef)
				return nil
			}
			if visibleEntries == 0 {
				fmt.Fprintf(command.OutOrStdout(), allHiddenMessageFormat, totalEntries)
				return nil
			}

			costTotal := 0
			changeEntries := engine.coordinator.CheckedChangeEntries()
			for _, changeEntry := range changeEntries {
				entryCost := engine.estimator.Estimate(filepath.Join(engine.repositoryRoot, filepath.FromSlash(changeEntry.Path)))
				costTotal += entryCost
				fmt.Fprintf(command.OutOrStdout(), changeLineFormat, changeEntry.Status, changeEntry.Path, cost.FormatTokens(entryCost))
			}
			fmt.Fprintf(command.OutOrStdout(), changeSummaryFormat, len(changeEntries), cost.FormatTokens(costTotal))
			return nil
		},
	}
}

// createAssembleCommand returns the assemble subcommand.
func createAssembleCommand(options *runtimeOptions) *cobra.Command {
	var instructions string
	var supplementaryPaths []string
	var copyToClipboard bool

	assembleCommand := &cobra.Command{
		Use:   assembleUse,
		Short: assembleShort,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			engine, engineError := buildEngine(options)
			if engineError != nil {
				return engineError
			}
			defer engine.logger.Sync()

			engine.coordinator.Reload(command.Context(), engine.targetRef, engine.sourceRef)
			if len(supplementaryPaths) > 0 {
				selectionChanges := make([]types.SelectionChange, 0, len(supplementaryPaths))
				for _, supplementaryPath := range supplementaryPaths {
					relativePath := utils.NormalizeToSlash(utils.RelativePathOrSelf(supplementaryPath, engine.repositoryRoot))
					selectionChanges = append(selectionChanges, types.SelectionChange{
						Path:    relativePath,
						Kind:    types.NodeKindFile,
						Checked: true,
					})
				}
				engine.coordinator.ApplyBatch(command.Context(), types.OriginProjectTree, selectionChanges)
			}

			documentInstructions := instructions
			if documentInstructions == "" {
				documentInstructions = engine.configuration.Instructions
			}
			builder := &reviewDocumentBuilder{engine: engine}
			document, buildError := builder.BuildDocument(command.Context(), documentInstructions)
			if buildError != nil {
				return buildError
			}

			shouldCopy := copyToClipboard
			if !command.Flags().Changed(copyFlagName) && engine.configuration.CopyToClipboard != nil {
				shouldCopy = *engine.configuration.CopyToClipboard
			}
			if shouldCopy {
				var renderedDocument strings.Builder
				if renderError := assemble.Render(&renderedDocument, document); renderError != nil {
					return renderError
				}
				if copyError := clipboard.NewService().Copy(renderedDocument.String()); copyError != nil {
					return copyError
				}
				engine.logger.Info(copiedToClipboardNotice)
			} else {
				if renderError := assemble.Render(command.OutOrStdout(), document); renderError != nil {
					return renderError
				}
			}
			memberCount := len(document.Changes) + len(document.Supplementary)
			engine.logger.Info(fmt.Sprintf(assembledSummaryFormat, memberCount, cost.FormatTokens(document.TotalTokens())))
			return nil
		},
	}
	assembleCommand.Flags().StringVar(&instructions, instructionsFlagName, "", instructionsFlagDescription)
	assembleCommand.Flags().StringArrayVar(&supplementaryPaths, addFlagName, nil, addFlagDescription)
	assembleCommand.Flags().BoolVar(&copyToClipboard, copyFlagName, false, copyFlagDescription)
	return assembleCommand
}

// createServeCommand returns the serve subcommand.
func createServeCommand(options *runtimeOptions) *cobra.Command {
	var listenAddress string
	var watchEnabled bool

	serveCommand := &cobra.Command{
		Use:   serveUse,
		Short: serveShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			engine, engineError := buildEngine(options)
			if engineError != nil {
				return engineError
			}
			defer engine.logger.Sync()

			resolvedListenAddress := listenAddress
			if !command.Flags().Changed(listenFlagName) && engine.configuration.ListenAddress != "" {
				resolvedListenAddress = engine.configuration.ListenAddress
			}
			shouldWatch := watchEnabled
			if !command.Flags().Changed(watchFlagName) && engine.configuration.WatchEnabled != nil {
				shouldWatch = *engine.configuration.WatchEnabled
			}

			signalContext, stopSignals := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
			defer stopSignals()

			engine.coordinator.Reload(signalContext, engine.targetRef, engine.sourceRef)
			server := webui.NewServer(
				resolvedListenAddress,
				engine.coordinator,
				&reviewDocumentBuilder{engine: engine, defaultInstructions: engine.configuration.Instructions},
				engine.logger,
			)

			group, groupContext := errgroup.WithContext(signalContext)
			group.Go(func() error {
				return server.Run(groupContext)
			})
			if shouldWatch {
				watchService := watch.NewService(engine.repositoryRoot, engine.coordinator, engine.logger)
				if startError := watchService.Start(); startError != nil {
					return startError
				}
				group.Go(func() error {
					<-groupContext.Done()
					watchService.Stop()
					return nil
				})
			}
			return group.Wait()
		},
	}
	serveCommand.Flags().StringVar(&listenAddress, listenFlagName, defaultListenAddress, listenFlagDescription)
	serveCommand.Flags().BoolVar(&watchEnabled, watchFlagName, false, watchFlagDescription)
	return serveCommand
}

// createVersionCommand returns the version subcommand.
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   versionUse,
		Short: versionShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			fmt.Fprintf(command.OutOrStdout(), versionTemplate, utils.GetApplicationVersion())
			return nil
		},
	}
}

// createInitCommand returns the init subcommand.
func createInitCommand(options *runtimeOptions) *cobra.Command {
	var writeGlobal bool
	var forceOverwrite bool

	initCommand := &cobra.Command{
		Use:   initUse,
		Short: initShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			initTarget := config.InitTargetLocal
			if writeGlobal {
				initTarget = config.InitTargetGlobal
			}
			writtenPath, initError := config.InitializeConfiguration(config.InitOptions{
				Target:           initTarget,
				Force:            forceOverwrite,
				WorkingDirectory: options.repositoryRoot,
			})
			if initError != nil {
				return initError
			}
			fmt.Fprintf(command.OutOrStdout(), configWrittenFormat, writtenPath)
			return nil
		},
	}
	initCommand.Flags().BoolVar(&writeGlobal, globalFlagName, false, globalFlagDescription)
	initCommand.Flags().BoolVar(&forceOverwrite, forceFlagName, false, forceFlagDescription)
	return initCommand
}
