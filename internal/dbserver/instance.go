package dbserver

import (
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// Instance represents a single database server running on a specific host and
// port. Connection pools are cached per schema+params combination, so repeated
// Connect calls with the same arguments reuse the same pool.
type Instance struct {
	Host           string
	Port           int
	User           string
	Password       string
	defaultParams  map[string]string
	connectionPool map[string]*sqlx.DB // key is in format "schema?params"
	*sync.RWMutex                      // protects connectionPool for concurrent operations
}

// NewInstance returns an Instance for the supplied endpoint. A zero port
// means the MySQL default of 3306. The wire charset is always utf8mb4.
func NewInstance(host string, port int, user, password string) *Instance {
	if port == 0 {
		port = 3306
	}
	return &Instance{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		defaultParams: map[string]string{
			"charset": "utf8mb4",
		},
		connectionPool: make(map[string]*sqlx.DB),
		RWMutex:        new(sync.RWMutex),
	}
}

// String for an instance returns a "host:port" string.
func (in *Instance) String() string {
	return fmt.Sprintf("%s:%d", in.Host, in.Port)
}

func (in *Instance) baseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/", in.User, in.Password, in.Host, in.Port)
}

func (in *Instance) buildParamString(params string) string {
	v := url.Values{}
	for defName, defValue := range in.defaultParams {
		v.Set(defName, defValue)
	}
	overrides, _ := url.ParseQuery(params)
	for name := range overrides {
		v.Set(name, overrides.Get(name))
	}
	return v.Encode()
}

// Connect returns a connection pool for this instance with the supplied
// default schema and params string. If a pool already exists for this
// combination, it is returned; otherwise one is initialized and a connection
// attempt is made to confirm access. defaultSchema may be "" if not relevant.
// params should be in "foo=bar&fizz=buzz" format with URL escaping already
// applied; they are merged over the instance defaults.
// To avoid problems with unexpected disconnection, the pool automatically has
// a max conn lifetime of at most 30sec, or less if the server's wait_timeout
// is lower.
func (in *Instance) Connect(defaultSchema string, params string) (*sqlx.DB, error) {
	fullParams := in.buildParamString(params)
	key := fmt.Sprintf("%s?%s", defaultSchema, fullParams)

	in.RLock()
	pool, ok := in.connectionPool[key]
	in.RUnlock()
	if ok {
		return pool, nil
	}

	db, err := sqlx.Connect("mysql", in.baseDSN()+key)
	if err != nil {
		return nil, err
	}

	maxLifetime := 30 * time.Second
	parsedParams, _ := url.ParseQuery(fullParams)
	waitTimeout, _ := strconv.Atoi(parsedParams.Get("wait_timeout"))
	if waitTimeout == 0 {
		// Errors ignored: the 30s default remains a sane fallback
		db.QueryRow("SELECT @@wait_timeout").Scan(&waitTimeout)
	}
	if waitTimeout > 1 && waitTimeout <= 30 {
		maxLifetime = time.Duration(waitTimeout-1) * time.Second
	} else if waitTimeout == 1 {
		maxLifetime = 900 * time.Millisecond
	}
	db.SetConnMaxLifetime(maxLifetime)

	in.Lock()
	defer in.Unlock()
	in.connectionPool[key] = db.Unsafe()
	return in.connectionPool[key], nil
}

// CanConnect verifies that the Instance can be connected to.
func (in *Instance) CanConnect() error {
	_, err := in.Connect("", "")
	return err
}

// CloseAll closes all of the instance's connection pools. Useful for graceful
// shutdown, to avoid aborted-connection counters/logging in some versions of
// MySQL.
func (in *Instance) CloseAll() {
	in.Lock()
	for key, db := range in.connectionPool {
		db.Close()
		delete(in.connectionPool, key)
	}
	in.Unlock()
}
