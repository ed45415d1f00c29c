package cli

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/spf13/cobra"

	"document-assistant/handler"
	"document-assistant/internal/config"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve the HTTP API as an API Gateway proxy Lambda function",
	Args:  cobra.NoArgs,
	RunE:  runLambda,
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}

func runLambda(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	if rt.cfg.Store.Backend == config.BackendMemory {
		rt.log.Warn("memory store is per instance; set STORE_BACKEND=dynamodb for Lambda")
	}

	h, err := handler.NewHandler(adaptor.FiberApp(newServer(rt).App()), rt.log)
	if err != nil {
		return err
	}
	lambda.Start(h.Handle)
	return nil
}
