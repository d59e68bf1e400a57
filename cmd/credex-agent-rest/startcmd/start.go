/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/component/storage/leveldb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/trustridge/credex-go/pkg/anoncreds/plaincred"
	"github.com/trustridge/credex-go/pkg/controller"
	transporthttp "github.com/trustridge/credex-go/pkg/didcomm/transport/http"
	"github.com/trustridge/credex-go/pkg/ledger"

	protocol "github.com/trustridge/credex-go/pkg/didcomm/protocol/issuecredential"
	"github.com/trustridge/credex-go/pkg/store/connection"
)

const (
	// api host flag.
	agentHostFlagName      = "api-host"
	agentHostEnvKey        = "CREDEX_API_HOST"
	agentHostFlagShorthand = "a"
	agentHostFlagUsage     = "Host Name:Port." +
		" Alternatively, this can be set with the following environment variable: " + agentHostEnvKey

	// api token flag.
	agentTokenFlagName      = "api-token"
	agentTokenEnvKey        = "CREDEX_API_TOKEN" // nolint:gosec
	agentTokenFlagShorthand = "t"
	agentTokenFlagUsage     = "Check for bearer token in the authorization header (optional)." +
		" Alternatively, this can be set with the following environment variable: " + agentTokenEnvKey

	// inbound host flag.
	agentInboundHostFlagName      = "inbound-host"
	agentInboundHostEnvKey        = "CREDEX_INBOUND_HOST"
	agentInboundHostFlagShorthand = "i"
	agentInboundHostFlagUsage     = "Inbound Host Name:Port for messages posted by peer agents." +
		" Defaults to the api host when not set." +
		" Alternatively, this can be set with the following environment variable: " + agentInboundHostEnvKey

	databaseTypeFlagName      = "database-type"
	databaseTypeEnvKey        = "CREDEX_DATABASE_TYPE"
	databaseTypeFlagShorthand = "q"
	databaseTypeFlagUsage     = "The type of database to use for exchange and connection records. " +
		"Supported options: mem, leveldb. " +
		" Alternatively, this can be set with the following environment variable: " + databaseTypeEnvKey

	databaseURLFlagName      = "database-url"
	databaseURLEnvKey        = "CREDEX_DATABASE_URL"
	databaseURLFlagShorthand = "v"
	databaseURLFlagUsage     = "The URL (or path, for leveldb) of the database. Not needed if using memstore." +
		" Alternatively, this can be set with the following environment variable: " + databaseURLEnvKey

	databaseTimeoutFlagName  = "database-timeout"
	databaseTimeoutFlagUsage = "Total time in seconds to wait until the db is available before giving up." +
		" Default: " + databaseTimeoutDefault + " seconds." +
		" Alternatively, this can be set with the following environment variable: " + databaseTimeoutEnvKey
	databaseTimeoutEnvKey  = "CREDEX_DATABASE_TIMEOUT"
	databaseTimeoutDefault = "30"

	// ledger url flag.
	ledgerURLFlagName      = "ledger-url"
	ledgerURLEnvKey        = "CREDEX_LEDGER_URL"
	ledgerURLFlagShorthand = "l"
	ledgerURLFlagUsage     = "Base URL of the schema/credential-definition registry." +
		" A storage-backed local registry is used when not set." +
		" Alternatively, this can be set with the following environment variable: " + ledgerURLEnvKey

	ledgerCacheSizeFlagName  = "ledger-cache-size"
	ledgerCacheSizeEnvKey    = "CREDEX_LEDGER_CACHE_SIZE"
	ledgerCacheSizeFlagUsage = "Number of ledger registry entries kept in the in-memory cache." +
		" Default: " + ledgerCacheSizeDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + ledgerCacheSizeEnvKey
	ledgerCacheSizeDefault = "128"

	// automation flags.
	autoOfferFlagName  = "auto-offer"
	autoOfferEnvKey    = "CREDEX_AUTO_OFFER"
	autoOfferFlagUsage = "Automatically respond to credential proposals with offers." +
		" Possible values [true] [false]. Defaults to false if not set." +
		" Alternatively, this can be set with the following environment variable: " + autoOfferEnvKey

	autoIssueFlagName  = "auto-issue"
	autoIssueEnvKey    = "CREDEX_AUTO_ISSUE"
	autoIssueFlagUsage = "Automatically respond to credential requests with issued credentials." +
		" Possible values [true] [false]. Defaults to false if not set." +
		" Alternatively, this can be set with the following environment variable: " + autoIssueEnvKey

	autoStoreFlagName  = "auto-store"
	autoStoreEnvKey    = "CREDEX_AUTO_STORE"
	autoStoreFlagUsage = "Automatically store received credentials and acknowledge them." +
		" Possible values [true] [false]. Defaults to false if not set." +
		" Alternatively, this can be set with the following environment variable: " + autoStoreEnvKey

	autoRemoveFlagName  = "auto-remove"
	autoRemoveEnvKey    = "CREDEX_AUTO_REMOVE"
	autoRemoveFlagUsage = "Automatically remove exchange records once they complete." +
		" Possible values [true] [false]. Defaults to false if not set." +
		" Alternatively, this can be set with the following environment variable: " + autoRemoveEnvKey

	// log level.
	agentLogLevelFlagName  = "log-level"
	agentLogLevelEnvKey    = "CREDEX_LOG_LEVEL"
	agentLogLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + agentLogLevelEnvKey

	agentTLSCertFileFlagName      = "tls-cert-file"
	agentTLSCertFileEnvKey        = "TLS_CERT_FILE"
	agentTLSCertFileFlagShorthand = "c"
	agentTLSCertFileFlagUsage     = "tls certificate file." +
		" Alternatively, this can be set with the following environment variable: " + agentTLSCertFileEnvKey

	agentTLSKeyFileFlagName      = "tls-key-file"
	agentTLSKeyFileEnvKey        = "TLS_KEY_FILE"
	agentTLSKeyFileFlagShorthand = "k"
	agentTLSKeyFileFlagUsage     = "tls key file." +
		" Alternatively, this can be set with the following environment variable: " + agentTLSKeyFileEnvKey

	databaseTypeMemOption     = "mem"
	databaseTypeLevelDBOption = "leveldb"
)

var (
	errMissingHost = errors.New("host not provided")
	logger         = log.New("credex/agent-rest")
)

type agentParameters struct {
	server            server
	host, inboundHost string
	token             string
	tlsCertFile       string
	tlsKeyFile        string
	ledgerURL         string
	ledgerCacheSize   int
	automation        protocol.Config
	dbParam           *dbParam
}

type dbParam struct {
	dbType  string
	url     string
	timeout uint64
}

// nolint:gochecknoglobals
var supportedStorageProviders = map[string]func(url string) (storage.Provider, error){
	databaseTypeMemOption: func(_ string) (storage.Provider, error) { // nolint:unparam
		return mem.NewProvider(), nil
	},
	databaseTypeLevelDBOption: func(path string) (storage.Provider, error) { // nolint:unparam
		return leveldb.NewProvider(path), nil
	},
}

type server interface {
	ListenAndServe(host string, router http.Handler, certFile, keyFile string) error
}

// HTTPServer represents an actual server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host string, router http.Handler, certFile, keyFile string) error {
	if certFile != "" && keyFile != "" {
		return http.ListenAndServeTLS(host, certFile, keyFile, router)
	}

	return http.ListenAndServe(host, router)
}

// Cmd returns the Cobra start command.
func Cmd(server server) (*cobra.Command, error) {
	startCmd := createStartCMD(server)

	createFlags(startCmd)

	return startCmd, nil
}

func createStartCMD(server server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start an agent",
		Long:  `Start a credential exchange agent controller`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel, err := getUserSetVar(cmd, agentLogLevelFlagName, agentLogLevelEnvKey, true)
			if err != nil {
				return err
			}

			if err := setLogLevel(logLevel); err != nil {
				return err
			}

			host, err := getUserSetVar(cmd, agentHostFlagName, agentHostEnvKey, false)
			if err != nil {
				return err
			}

			inboundHost, err := getUserSetVar(cmd, agentInboundHostFlagName, agentInboundHostEnvKey, true)
			if err != nil {
				return err
			}

			token, err := getUserSetVar(cmd, agentTokenFlagName, agentTokenEnvKey, true)
			if err != nil {
				return err
			}

			dbParam, err := getDBParam(cmd)
			if err != nil {
				return err
			}

			ledgerURL, err := getUserSetVar(cmd, ledgerURLFlagName, ledgerURLEnvKey, true)
			if err != nil {
				return err
			}

			ledgerCacheSize, err := getLedgerCacheSize(cmd)
			if err != nil {
				return err
			}

			automation, err := getAutomationConfig(cmd)
			if err != nil {
				return err
			}

			tlsCertFile, err := getUserSetVar(cmd, agentTLSCertFileFlagName, agentTLSCertFileEnvKey, true)
			if err != nil {
				return err
			}

			tlsKeyFile, err := getUserSetVar(cmd, agentTLSKeyFileFlagName, agentTLSKeyFileEnvKey, true)
			if err != nil {
				return err
			}

			parameters := &agentParameters{
				server:          server,
				host:            host,
				inboundHost:     inboundHost,
				token:           token,
				dbParam:         dbParam,
				ledgerURL:       ledgerURL,
				ledgerCacheSize: ledgerCacheSize,
				automation:      automation,
				tlsCertFile:     tlsCertFile,
				tlsKeyFile:      tlsKeyFile,
			}

			return startAgent(parameters)
		},
	}
}

func getDBParam(cmd *cobra.Command) (*dbParam, error) {
	dbParam := &dbParam{}

	var err error

	dbParam.dbType, err = getUserSetVar(cmd, databaseTypeFlagName, databaseTypeEnvKey, false)
	if err != nil {
		return nil, err
	}

	dbParam.url, err = getUserSetVar(cmd, databaseURLFlagName, databaseURLEnvKey, true)
	if err != nil {
		return nil, err
	}

	dbTimeout, err := getUserSetVar(cmd, databaseTimeoutFlagName, databaseTimeoutEnvKey, true)
	if err != nil {
		return nil, err
	}

	if dbTimeout == "" || dbTimeout == "0" {
		dbTimeout = databaseTimeoutDefault
	}

	t, err := strconv.Atoi(dbTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db timeout %s: %w", dbTimeout, err)
	}

	dbParam.timeout = uint64(t)

	return dbParam, nil
}

func getLedgerCacheSize(cmd *cobra.Command) (int, error) {
	v, err := getUserSetVar(cmd, ledgerCacheSizeFlagName, ledgerCacheSizeEnvKey, true)
	if err != nil {
		return 0, err
	}

	if v == "" {
		v = ledgerCacheSizeDefault
	}

	size, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ledger cache size %s: %w", v, err)
	}

	return size, nil
}

func getAutomationConfig(cmd *cobra.Command) (protocol.Config, error) {
	config := protocol.Config{}

	for _, flag := range []struct {
		name   string
		envKey string
		target *bool
	}{
		{autoOfferFlagName, autoOfferEnvKey, &config.AutoOffer},
		{autoIssueFlagName, autoIssueEnvKey, &config.AutoIssue},
		{autoStoreFlagName, autoStoreEnvKey, &config.AutoStore},
		{autoRemoveFlagName, autoRemoveEnvKey, &config.AutoRemove},
	} {
		v, err := getUserSetVar(cmd, flag.name, flag.envKey, true)
		if err != nil {
			return config, err
		}

		if v == "" {
			continue
		}

		b, err := strconv.ParseBool(v)
		if err != nil {
			return config, fmt.Errorf("invalid value for %s: %w", flag.name, err)
		}

		*flag.target = b
	}

	return config, nil
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(agentHostFlagName, agentHostFlagShorthand, "", agentHostFlagUsage)
	startCmd.Flags().StringP(agentTokenFlagName, agentTokenFlagShorthand, "", agentTokenFlagUsage)
	startCmd.Flags().StringP(agentInboundHostFlagName, agentInboundHostFlagShorthand, "", agentInboundHostFlagUsage)
	startCmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)
	startCmd.Flags().StringP(databaseURLFlagName, databaseURLFlagShorthand, "", databaseURLFlagUsage)
	startCmd.Flags().StringP(databaseTimeoutFlagName, "", "", databaseTimeoutFlagUsage)
	startCmd.Flags().StringP(ledgerURLFlagName, ledgerURLFlagShorthand, "", ledgerURLFlagUsage)
	startCmd.Flags().StringP(ledgerCacheSizeFlagName, "", "", ledgerCacheSizeFlagUsage)
	startCmd.Flags().StringP(autoOfferFlagName, "", "", autoOfferFlagUsage)
	startCmd.Flags().StringP(autoIssueFlagName, "", "", autoIssueFlagUsage)
	startCmd.Flags().StringP(autoStoreFlagName, "", "", autoStoreFlagUsage)
	startCmd.Flags().StringP(autoRemoveFlagName, "", "", autoRemoveFlagUsage)
	startCmd.Flags().StringP(agentLogLevelFlagName, "", "", agentLogLevelFlagUsage)
	startCmd.Flags().StringP(agentTLSCertFileFlagName, agentTLSCertFileFlagShorthand, "", agentTLSCertFileFlagUsage)
	startCmd.Flags().StringP(agentTLSKeyFileFlagName, agentTLSKeyFileFlagShorthand, "", agentTLSKeyFileFlagUsage)
}

func getUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		return value, nil
	}

	return "", errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

func createStoreProvider(dbParam *dbParam) (storage.Provider, error) {
	createProvider, supported := supportedStorageProviders[dbParam.dbType]
	if !supported {
		return nil, fmt.Errorf("database type not set to a valid type. run start --help to see the available options")
	}

	var store storage.Provider

	err := backoff.RetryNotify(
		func() error {
			var openErr error
			store, openErr = createProvider(dbParam.url)

			return openErr
		},
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), dbParam.timeout),
		func(retryErr error, t time.Duration) {
			logger.Warnf("failed to open the database at %s, will sleep for %s before trying again: %s",
				dbParam.url, t, retryErr)
		})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database at %s: %w", dbParam.url, err)
	}

	return store, nil
}

func setLogLevel(logLevel string) error {
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level '%s' : %w", logLevel, err)
		}

		log.SetLevel("", level)

		logger.Infof("logger level set to %s", logLevel)
	}

	return nil
}

func validateAuthorizationBearerToken(w http.ResponseWriter, r *http.Request, token string) bool {
	actHdr := r.Header.Get("Authorization")
	expHdr := "Bearer " + token

	if subtle.ConstantTimeCompare([]byte(actHdr), []byte(expHdr)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthorised.\n")) // nolint:gosec,errcheck

		return false
	}

	return true
}

func authorizationMiddleware(token string) mux.MiddlewareFunc {
	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validateAuthorizationBearerToken(w, r, token) {
				next.ServeHTTP(w, r)
			}
		})
	}

	return middleware
}

// ctxProvider wires the storage provider and collaborators into the manager.
type ctxProvider struct {
	storageProvider storage.Provider
	issuer          protocol.Issuer
	holder          protocol.Holder
	ledger          protocol.Ledger
}

func (p *ctxProvider) StorageProvider() storage.Provider { return p.storageProvider }
func (p *ctxProvider) Issuer() protocol.Issuer           { return p.issuer }
func (p *ctxProvider) Holder() protocol.Holder           { return p.holder }
func (p *ctxProvider) Ledger() protocol.Ledger           { return p.ledger }

func createLedgerRegistry(parameters *agentParameters, storeProvider storage.Provider) (ledger.Registry, error) {
	if parameters.ledgerURL != "" {
		binding, err := ledger.NewHTTPBinding(parameters.ledgerURL)
		if err != nil {
			return nil, fmt.Errorf("create ledger binding: %w", err)
		}

		return ledger.NewCachedRegistry(binding, parameters.ledgerCacheSize), nil
	}

	local, err := plaincred.NewLocalRegistry(storeProvider)
	if err != nil {
		return nil, fmt.Errorf("create local registry: %w", err)
	}

	return local, nil
}

func startAgent(parameters *agentParameters) error { //nolint: funlen
	if parameters.host == "" {
		return errMissingHost
	}

	storeProvider, err := createStoreProvider(parameters.dbParam)
	if err != nil {
		return err
	}

	registry, err := createLedgerRegistry(parameters, storeProvider)
	if err != nil {
		return err
	}

	holder, err := plaincred.NewHolder(storeProvider)
	if err != nil {
		return fmt.Errorf("create holder: %w", err)
	}

	connections, err := connection.NewLookup(&ctxProvider{storageProvider: storeProvider})
	if err != nil {
		return fmt.Errorf("create connection lookup: %w", err)
	}

	outbound, err := transporthttp.NewOutbound(connections,
		transporthttp.WithOutboundHTTPClient(&http.Client{}))
	if err != nil {
		return fmt.Errorf("create outbound transport: %w", err)
	}

	manager, err := protocol.NewManager(&ctxProvider{
		storageProvider: storeProvider,
		issuer:          plaincred.NewIssuer(),
		holder:          holder,
		ledger:          registry,
	}, parameters.automation)
	if err != nil {
		return fmt.Errorf("create credential exchange manager: %w", err)
	}

	handlers := protocol.NewHandlers(manager, connections, outbound)

	router := mux.NewRouter()

	if parameters.token != "" {
		router.Use(authorizationMiddleware(parameters.token))
	}

	for _, handler := range controller.GetRESTHandlers(manager, connections, outbound) {
		router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}

	inbound := transporthttp.NewInboundHandler(handlers)

	if parameters.inboundHost != "" && parameters.inboundHost != parameters.host {
		// dedicated inbound listener, separate from the admin API.
		inboundRouter := mux.NewRouter()
		inboundRouter.Handle("/didcomm", inbound).Methods(http.MethodPost)

		go func() {
			if err := parameters.server.ListenAndServe(parameters.inboundHost, inboundRouter,
				parameters.tlsCertFile, parameters.tlsKeyFile); err != nil {
				logger.Fatalf("inbound listener on [%s] failed: %s", parameters.inboundHost, err)
			}
		}()
	} else {
		router.Handle("/didcomm", inbound).Methods(http.MethodPost)
	}

	logger.Infof("Starting credex agent rest on host [%s]", parameters.host)

	handler := cors.New(
		cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodHead},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		},
	).Handler(router)

	if err := parameters.server.ListenAndServe(parameters.host, handler,
		parameters.tlsCertFile, parameters.tlsKeyFile); err != nil {
		return fmt.Errorf("failed to start credex agent rest on port [%s], cause: %w", parameters.host, err)
	}

	return nil
}
