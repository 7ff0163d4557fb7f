// Package main provides a CLI for interacting with the flowregistry server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL  string
	username   string
	password   string
	token      string
	configPath string
)

// Config represents the CLI configuration
type Config struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Token     string `json:"token"`
	JWTToken  string `json:"jwt_token"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowregistry-cli",
		Short: "flowregistry CLI",
		Long:  "Command-line interface for interacting with the flowregistry server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if serverURL == "" || (username == "" && token == "") {
				loadCLIConfig()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Password")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "API token")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	rootCmd.AddCommand(loginCmd())

	// Account commands
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Account management",
	}
	accountCmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Create a new account",
			Run:   createAccount,
		},
		&cobra.Command{
			Use:   "info",
			Short: "Get account information",
			Run:   getAccountInfo,
		},
	)

	// Flow commands
	flowCmd := &cobra.Command{
		Use:   "flow",
		Short: "Flow management",
	}
	flowCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List flows",
			Run:   listFlows,
		},
		&cobra.Command{
			Use:   "create [name]",
			Short: "Create a new flow",
			Args:  cobra.ExactArgs(1),
			Run:   createFlow,
		},
		&cobra.Command{
			Use:   "get [id]",
			Short: "Get a flow, including its version history",
			Args:  cobra.ExactArgs(1),
			Run:   getFlow,
		},
		&cobra.Command{
			Use:   "delete [id]",
			Short: "Delete a flow and all of its versions",
			Args:  cobra.ExactArgs(1),
			Run:   deleteFlow,
		},
		&cobra.Command{
			Use:   "fields",
			Short: "List the flow fields valid for sorting",
			Run:   getFlowFields,
		},
	)

	// Version commands
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Flow version management",
	}
	versionCmd.AddCommand(
		&cobra.Command{
			Use:   "list [flow-id]",
			Short: "List a flow's versions",
			Args:  cobra.ExactArgs(1),
			Run:   listVersions,
		},
		&cobra.Command{
			Use:   "create [flow-id] [file]",
			Short: "Create a new version from a JSON snapshot file",
			Args:  cobra.ExactArgs(2),
			Run:   createVersion,
		},
		&cobra.Command{
			Use:   "get [flow-id] [version]",
			Short: "Get one version of a flow",
			Args:  cobra.ExactArgs(2),
			Run:   getVersion,
		},
		&cobra.Command{
			Use:   "latest [flow-id]",
			Short: "Get the latest version of a flow",
			Args:  cobra.ExactArgs(1),
			Run:   getLatestVersion,
		},
	)

	rootCmd.AddCommand(accountCmd, flowCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadCLIConfig loads the CLI configuration
func loadCLIConfig() {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".flowregistry", "cli-config.json")
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Printf("Warning: Failed to read config file: %v\n", err)
		return
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		fmt.Printf("Warning: Failed to parse config file: %v\n", err)
		return
	}

	if serverURL == "" {
		serverURL = config.ServerURL
	}
	if username == "" && token == "" {
		username = config.Username
		token = config.Token

		// Prefer JWT token if available
		if config.JWTToken != "" {
			token = config.JWTToken
		}
	}
}

// saveCLIConfig saves the CLI configuration
func saveCLIConfig(config Config) error {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir := filepath.Join(home, ".flowregistry")
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = filepath.Join(configDir, "cli-config.json")
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// doRequest sends an authenticated request to the server and returns the
// response body when the status matches wantStatus
func doRequest(method, path string, body []byte, wantStatus int) ([]byte, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewBuffer(body)
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if username != "" && password != "" {
		req.SetBasicAuth(username, password)
	} else {
		return nil, fmt.Errorf("authentication required")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != wantStatus {
		return nil, fmt.Errorf("%s", strings.TrimSpace(string(respBody)))
	}

	return respBody, nil
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

func printJSON(body []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}

// loginCmd authenticates with username and password and stores the JWT
func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and store a JWT token",
		Run: func(cmd *cobra.Command, args []string) {
			if serverURL == "" {
				fail(fmt.Errorf("server URL is required"))
			}
			if username == "" {
				fmt.Print("Username: ")
				fmt.Scanln(&username)
			}
			if password == "" {
				fmt.Print("Password: ")
				fmt.Scanln(&password)
			}

			reqBody, _ := json.Marshal(map[string]string{
				"username": username,
				"password": password,
			})

			resp, err := http.Post(serverURL+"/api/v1/login", "application/json", bytes.NewBuffer(reqBody))
			if err != nil {
				fail(err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				fail(err)
			}
			if resp.StatusCode != http.StatusOK {
				fail(fmt.Errorf("%s", strings.TrimSpace(string(body))))
			}

			var loginResp struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(body, &loginResp); err != nil {
				fail(err)
			}

			if err := saveCLIConfig(Config{
				ServerURL: serverURL,
				Username:  username,
				JWTToken:  loginResp.Token,
			}); err != nil {
				fmt.Printf("Warning: Failed to save config: %v\n", err)
			}

			fmt.Println("Logged in successfully")
		},
	}
}

// createAccount creates a new account
func createAccount(cmd *cobra.Command, args []string) {
	if serverURL == "" {
		fail(fmt.Errorf("server URL is required"))
	}
	if username == "" {
		fmt.Print("Username: ")
		fmt.Scanln(&username)
	}
	if password == "" {
		fmt.Print("Password: ")
		fmt.Scanln(&password)
	}

	reqBody, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	resp, err := http.Post(serverURL+"/api/v1/accounts", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		fail(fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	fmt.Println("Account created successfully")

	if err := saveCLIConfig(Config{ServerURL: serverURL, Username: username}); err != nil {
		fmt.Printf("Warning: Failed to save config: %v\n", err)
	}
}

// getAccountInfo gets information about the current account
func getAccountInfo(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodGet, "/api/v1/accounts/me", nil, http.StatusOK)
	if err != nil {
		fail(err)
	}
	printJSON(body)
}

// listFlows lists all flows
func listFlows(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodGet, "/api/v1/flows", nil, http.StatusOK)
	if err != nil {
		fail(err)
	}

	var flows []struct {
		Identifier   string `json:"identifier"`
		Name         string `json:"name"`
		VersionCount int    `json:"version_count"`
	}
	if err := json.Unmarshal(body, &flows); err != nil {
		fail(err)
	}

	if len(flows) == 0 {
		fmt.Println("No flows found")
		return
	}

	fmt.Println("ID\tName\tVersions")
	for _, flow := range flows {
		fmt.Printf("%s\t%s\t%d\n", flow.Identifier, flow.Name, flow.VersionCount)
	}
}

// createFlow creates a new flow
func createFlow(cmd *cobra.Command, args []string) {
	reqBody, _ := json.Marshal(map[string]string{
		"name": args[0],
	})

	body, err := doRequest(http.MethodPost, "/api/v1/flows", reqBody, http.StatusCreated)
	if err != nil {
		fail(err)
	}
	printJSON(body)
}

// getFlow gets a flow by ID with its version history
func getFlow(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodGet, "/api/v1/flows/"+args[0]+"?verbose=true", nil, http.StatusOK)
	if err != nil {
		fail(err)
	}
	printJSON(body)
}

// deleteFlow deletes a flow
func deleteFlow(cmd *cobra.Command, args []string) {
	flowID := args[0]

	fmt.Printf("Are you sure you want to delete flow %s and all of its versions? (y/N): ", flowID)
	var confirm string
	fmt.Scanln(&confirm)
	if strings.ToLower(confirm) != "y" {
		fmt.Println("Deletion cancelled")
		return
	}

	body, err := doRequest(http.MethodDelete, "/api/v1/flows/"+flowID, nil, http.StatusOK)
	if err != nil {
		fail(err)
	}

	fmt.Println("Flow deleted:")
	printJSON(body)
}

// getFlowFields lists the flow fields valid for sorting
func getFlowFields(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodGet, "/api/v1/flows/fields", nil, http.StatusOK)
	if err != nil {
		fail(err)
	}
	printJSON(body)
}

// listVersions lists a flow's version history
func listVersions(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodGet, "/api/v1/flows/"+args[0]+"/versions", nil, http.StatusOK)
	if err != nil {
		fail(err)
	}

	var versions []struct {
		Version  int    `json:"version"`
		Author   string `json:"author"`
		Comments string `json:"comments"`
	}
	if err := json.Unmarshal(body, &versions); err != nil {
		fail(err)
	}

	if len(versions) == 0 {
		fmt.Println("No versions found")
		return
	}

	fmt.Println("Version\tAuthor\tComments")
	for _, v := range versions {
		fmt.Printf("%d\t%s\t%s\n", v.Version, v.Author, v.Comments)
	}
}

// createVersion creates a new version from a snapshot file
func createVersion(cmd *cobra.Command, args []string) {
	flowID := args[0]

	contents, err := os.ReadFile(args[1])
	if err != nil {
		fail(err)
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"snapshot_metadata": map[string]string{
			"flow_identifier": flowID,
			"author":          username,
		},
		"flow_contents": json.RawMessage(contents),
	})
	if err != nil {
		fail(err)
	}

	body, err := doRequest(http.MethodPost, "/api/v1/flows/"+flowID+"/versions", reqBody, http.StatusCreated)
	if err != nil {
		fail(err)
	}
	printJSON(body)
}

// getVersion gets one version of a flow
func getVersion(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodGet, "/api/v1/flows/"+args[0]+"/versions/"+args[1], nil, http.StatusOK)
	if err != nil {
		fail(err)
	}
	printJSON(body)
}

// getLatestVersion gets the latest version of a flow
func getLatestVersion(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodGet, "/api/v1/flows/"+args[0]+"/versions/latest", nil, http.StatusOK)
	if err != nil {
		fail(err)
	}
	printJSON(body)
}
