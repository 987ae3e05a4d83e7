package viz

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
)

// a bucket is only rendered while somebody looked at it within this window
const viewerTimeout = time.Second

type ImageContainer struct {
	name string
	data []byte
}

type Producer interface {
	Name() string
	GetImage() *ImageContainer
	AddPlotOption(opt PlotOptions)
}

// Server renders registered plot producers to PNG and serves them over HTTP.
// Producers are grouped in buckets, one per processing chain.
type Server struct {
	images          map[string]map[string]*ImageContainer
	mu              sync.RWMutex
	srv             *http.Server
	producerBuckets map[string]map[string]Producer
	updateInterval  time.Duration
	enabled         bool
	lastViewed      map[string]time.Time
}

func NewServer(port int, updateInterval time.Duration) *Server {
	if updateInterval <= 0 {
		updateInterval = 500 * time.Millisecond
	}
	return &Server{
		images:          make(map[string]map[string]*ImageContainer),
		producerBuckets: make(map[string]map[string]Producer),
		lastViewed:      make(map[string]time.Time),
		srv:             &http.Server{Addr: fmt.Sprintf(":%d", port)},
		updateInterval:  updateInterval,
		enabled:         true,
	}
}

func (s *Server) Enable(enable bool) {
	s.mu.Lock()
	s.enabled = enable
	s.mu.Unlock()
}

func (s *Server) Register(key string, p Producer) {
	s.mu.Lock()
	bucket, ok := s.producerBuckets[key]
	if !ok {
		bucket = make(map[string]Producer)
		s.producerBuckets[key] = bucket
	}
	bucket[p.Name()] = p
	s.mu.Unlock()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) bucketNames() []string {
	keys := make([]string, 0, len(s.producerBuckets))
	for key := range s.producerBuckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// render refreshes the images of every bucket with a recent viewer.
func (s *Server) render() {
	s.mu.RLock()
	if !s.enabled {
		s.mu.RUnlock()
		return
	}
	type job struct {
		bucket   string
		producer Producer
	}
	var jobs []job
	for bucketName, bucket := range s.producerBuckets {
		if time.Since(s.lastViewed[bucketName]) >= viewerTimeout {
			continue
		}
		for _, producer := range bucket {
			jobs = append(jobs, job{bucketName, producer})
		}
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()

			img := j.producer.GetImage()
			if img == nil {
				return
			}

			s.mu.Lock()
			mb, ok := s.images[j.bucket]
			if !ok {
				mb = make(map[string]*ImageContainer)
				s.images[j.bucket] = mb
			}
			mb[img.name] = img
			s.mu.Unlock()
		}(j)
	}
	wg.Wait()
}

func (s *Server) markViewed(bucket string) {
	s.mu.Lock()
	s.lastViewed[bucket] = time.Now()
	s.mu.Unlock()
}

var viewTemplate = template.Must(template.New("view").Parse(`<html><head><title>Shockburst Viz</title>
<script type="text/javascript">
	var toggleRefresh = true;
	function toggleOn() { toggleRefresh = !toggleRefresh; }
	function changeBucket() {
		window.location.href = '/view/' + document.getElementById('bucketSelector').value;
	}
	window.onload = function() {
		var images = document.getElementsByTagName('img');
		for (var i = 0; i < images.length; i++) {
			setInterval(function(image) {
				if (toggleRefresh) {
					image.src = image.src.split("?")[0] + "?" + new Date().getTime();
				}
			}, {{.RefreshMillis}}, images[i]);
		}
	}
</script></head>
<body style='background-color: black'>
<select id="bucketSelector" onchange="changeBucket()">
{{range .Buckets}}<option value="{{.}}"{{if eq . $.Bucket}} selected{{end}}>{{.}}</option>
{{end}}</select>
<button onclick="toggleOn()">Refresh?</button>
<div style="display: flex; flex-direction: row; flex-wrap: wrap">
{{range .Images}}<div><img src="/img/{{$.Bucket}}/{{.}}?{{$.Now}}" /></div>
{{end}}</div>
</body></html>`))

func (s *Server) routes() http.Handler {
	handler := httprouter.New()

	handler.GET("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.mu.RLock()
		keys := s.bucketNames()
		s.mu.RUnlock()

		if len(keys) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Redirect(w, r, "/view/"+url.PathEscape(keys[0]), http.StatusFound)
	})

	handler.GET("/view/:bucket", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		bucket := params.ByName("bucket")

		s.mu.RLock()
		items, ok := s.producerBuckets[bucket]
		var names []string
		for name := range items {
			names = append(names, name)
		}
		buckets := s.bucketNames()
		s.mu.RUnlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		sort.Strings(names)
		s.markViewed(bucket)

		w.Header().Add("Content-Type", "text/html")
		viewTemplate.Execute(w, struct {
			Bucket        string
			Buckets       []string
			Images        []string
			RefreshMillis int64
			Now           int64
		}{bucket, buckets, names, s.updateInterval.Milliseconds(), time.Now().UnixMicro()})
	})

	handler.GET("/img/:bucket/:img", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		bucketName := params.ByName("bucket")
		s.markViewed(bucketName)

		s.mu.RLock()
		img, ok := s.images[bucketName][params.ByName("img")]
		s.mu.RUnlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Add("Content-Type", "image/png")
		w.Write(img.data)
	})

	return handler
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(s.updateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.render()
			}
		}
	}()

	s.srv.Handler = s.routes()

	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
