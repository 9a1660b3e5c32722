package cdp

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// devtoolsCall 页面连接上收到的一条命令
type devtoolsCall struct {
	target string
	method string
	params gjson.Result
}

// stubReply 命令的返回值与随后推送的事件
type stubReply struct {
	result string
	events []string
}

type stubConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *stubConn) write(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

// devtoolsStub 提供 /json 目标接口与页面 websocket 的最小 DevTools 端点
type devtoolsStub struct {
	srv *httptest.Server

	mu       sync.Mutex
	targets  []string
	calls    []devtoolsCall
	conns    map[string]*stubConn
	handlers map[string]func(params gjson.Result) stubReply
	created  int
}

var stubUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func newDevtoolsStub(t *testing.T, targets ...string) *devtoolsStub {
	s := &devtoolsStub{
		targets:  targets,
		conns:    make(map[string]*stubConn),
		handlers: make(map[string]func(params gjson.Result) stubReply),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/json", s.list)
	mux.HandleFunc("/json/list", s.list)
	mux.HandleFunc("/json/new", s.create)
	mux.HandleFunc("/json/activate/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "Target activated")
	})
	mux.HandleFunc("/json/close/", s.close)
	mux.HandleFunc("/devtools/page/", s.serveWS)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		s.mu.Lock()
		for _, c := range s.conns {
			_ = c.ws.Close()
		}
		s.mu.Unlock()
		s.srv.Close()
	})
	return s
}

func (s *devtoolsStub) targetJSON(host, id string) string {
	doc, _ := sjson.Set(`{}`, "id", id)
	doc, _ = sjson.Set(doc, "type", "page")
	doc, _ = sjson.Set(doc, "title", id)
	doc, _ = sjson.Set(doc, "url", "about:blank")
	doc, _ = sjson.Set(doc, "webSocketDebuggerUrl", "ws://"+host+"/devtools/page/"+id)
	return doc
}

func (s *devtoolsStub) list(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := `[]`
	for _, id := range s.targets {
		doc, _ = sjson.SetRaw(doc, "-1", s.targetJSON(r.Host, id))
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, doc)
}

func (s *devtoolsStub) create(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	id := fmt.Sprintf("new-%d", s.created)
	s.targets = append(s.targets, id)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, s.targetJSON(r.Host, id))
}

func (s *devtoolsStub) close(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/json/close/")
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.targets[:0]
	for _, t := range s.targets {
		if t != id {
			kept = append(kept, t)
		}
	}
	s.targets = kept
	fmt.Fprint(w, "Target is closing")
}

func (s *devtoolsStub) serveWS(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/devtools/page/")
	ws, err := stubUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &stubConn{ws: ws}
	s.mu.Lock()
	s.conns[id] = c
	s.mu.Unlock()
	defer ws.Close()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		req := gjson.ParseBytes(msg)
		method := req.Get("method").String()

		s.mu.Lock()
		s.calls = append(s.calls, devtoolsCall{target: id, method: method, params: req.Get("params")})
		h := s.handlers[method]
		s.mu.Unlock()

		var reply stubReply
		if h != nil {
			reply = h(req.Get("params"))
		}
		if reply.result == "" {
			reply.result = `{}`
		}
		if err := c.write(fmt.Sprintf(`{"id":%d,"result":%s}`, req.Get("id").Int(), reply.result)); err != nil {
			return
		}
		for _, ev := range reply.events {
			_ = c.write(ev)
		}
	}
}

// handle 设置某个方法的返回
func (s *devtoolsStub) handle(method string, fn func(params gjson.Result) stubReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

// emit 向页面连接推送事件
func (s *devtoolsStub) emit(target, method, params string) error {
	s.mu.Lock()
	c := s.conns[target]
	s.mu.Unlock()
	if c == nil {
		return fmt.Errorf("target %s not connected", target)
	}
	return c.write(fmt.Sprintf(`{"method":%q,"params":%s}`, method, params))
}

// called 返回某方法的全部调用
func (s *devtoolsStub) called(method string) []devtoolsCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []devtoolsCall
	for _, c := range s.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func event(method, params string) string {
	return fmt.Sprintf(`{"method":%q,"params":%s}`, method, params)
}
