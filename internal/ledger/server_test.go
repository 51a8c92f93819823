package ledger

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		decoder     *mockDecoder
		storage     *mockStorage
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	// AppendHandlers queues a handler for a single request; these specs make
	// several per It, so the mux is routed persistently instead.
	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	}

	postJSON := func(path string, body any) *http.Response {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.Post(ghttpServer.URL()+path, "application/json", bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	// typeOverHTTP posts a serial as a key-event batch followed by Enter.
	typeOverHTTP := func(serial string) *http.Response {
		ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		batch := make([]keyEventPayload, 0, len(serial)+1)
		for _, ch := range serial {
			batch = append(batch, keyEventPayload{Char: string(ch), Timestamp: ts.UnixMilli()})
			ts = ts.Add(10 * time.Millisecond)
		}
		batch = append(batch, keyEventPayload{Terminator: true, Timestamp: ts.UnixMilli()})
		return postJSON("/api/events", batch)
	}

	listScans := func() []ScanRecord {
		resp, err := http.Get(ghttpServer.URL() + "/api/scans")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var scans []ScanRecord
		Expect(json.NewDecoder(resp.Body).Decode(&scans)).To(Succeed())
		return scans
	}

	BeforeEach(func() {
		decoder = &mockDecoder{serial: "CAM-001"}
		storage = newMockStorage()
		clock := &mockTimeSource{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(testConfig, decoder, storage, LayoutSerialTimestamp, clock)
		service.StartSession()
		auth = BasicAuth{}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service.Close()
	})

	Describe("handleIndex", func() {
		When("request method is GET", func() {
			It("should return the HTML interface", func() {
				resp, err := http.Get(ghttpServer.URL() + "/")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("text/html"))
			})
		})
	})

	Describe("handleKeyEvents", func() {
		When("posting a valid batch", func() {
			It("should accept the batch", func() {
				resp := typeOverHTTP("SN-1")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			})

			It("should produce a record", func() {
				typeOverHTTP("SN-1").Body.Close()
				scans := listScans()
				Expect(scans).To(HaveLen(1))
				Expect(scans[0].Serial).To(Equal("SN-1"))
			})
		})

		When("posting malformed JSON", func() {
			It("should return bad request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/events", "application/json", bytes.NewReader([]byte("{")))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleRemoveScan", func() {
		When("the record exists", func() {
			It("should remove it", func() {
				typeOverHTTP("SN-1").Body.Close()
				id := listScans()[0].ID

				req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/scans/%d", ghttpServer.URL(), id), nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(listScans()).To(BeEmpty())
			})
		})

		When("the ID is not a number", func() {
			It("should return bad request", func() {
				req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/scans/abc", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleClearScans", func() {
		It("should empty the ledger", func() {
			typeOverHTTP("SN-1").Body.Close()
			typeOverHTTP("SN-2").Body.Close()

			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/scans", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(listScans()).To(BeEmpty())
		})
	})

	Describe("session endpoints", func() {
		It("should report the current state", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/session")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var state map[string]bool
			Expect(json.NewDecoder(resp.Body).Decode(&state)).To(Succeed())
			Expect(state["enabled"]).To(BeTrue())
		})

		It("should set the state explicitly", func() {
			resp := postJSON("/api/session", map[string]bool{"enabled": false})
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(service.SessionEnabled()).To(BeFalse())
		})

		It("should toggle the state", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/session/toggle", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var state map[string]bool
			Expect(json.NewDecoder(resp.Body).Decode(&state)).To(Succeed())
			Expect(state["enabled"]).To(BeFalse())
		})

		It("should discard a partial scan on disable", func() {
			// Half a scan, no terminator.
			postJSON("/api/events", []keyEventPayload{
				{Char: "A", Timestamp: time.Now().UnixMilli()},
				{Char: "B", Timestamp: time.Now().UnixMilli()},
			}).Body.Close()
			postJSON("/api/session", map[string]bool{"enabled": false}).Body.Close()
			postJSON("/api/session", map[string]bool{"enabled": true}).Body.Close()

			typeOverHTTP("CD").Body.Close()
			scans := listScans()
			Expect(scans).To(HaveLen(1))
			Expect(scans[0].Serial).To(Equal("CD"))
		})
	})

	Describe("handleDecodeImage", func() {
		postImage := func() *http.Response {
			var buf bytes.Buffer
			writer := multipart.NewWriter(&buf)
			part, err := writer.CreateFormFile("file", "label.jpg")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("fake-image-bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())

			resp, err := http.Post(ghttpServer.URL()+"/api/decodes", writer.FormDataContentType(), &buf)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the decoder reads a new serial", func() {
			It("should create a record", func() {
				resp := postImage()
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(listScans()).To(HaveLen(1))
			})
		})

		When("the serial was already scanned", func() {
			It("should return conflict", func() {
				postImage().Body.Close()
				resp := postImage()
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			})
		})

		When("the decoder fails", func() {
			It("should return unprocessable entity", func() {
				decoder.decodeErr = errors.New("blurry photo")
				resp := postImage()
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("no file is provided", func() {
			It("should return bad request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/decodes", "multipart/form-data; boundary=x", bytes.NewReader(nil))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("export endpoints", func() {
		When("the ledger is empty", func() {
			It("should return conflict", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/exports", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			})
		})

		When("the ledger has records", func() {
			BeforeEach(func() {
				typeOverHTTP("A1").Body.Close()
				typeOverHTTP("A2").Body.Close()
			})

			It("should create and serve the artifact", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/exports", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var body map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body["filename"]).To(Equal("scans-2024-03-01.xlsx"))

				download, err := http.Get(ghttpServer.URL() + "/api/exports/" + body["filename"])
				Expect(err).NotTo(HaveOccurred())
				defer download.Body.Close()
				Expect(download.StatusCode).To(Equal(http.StatusOK))
				Expect(download.Header.Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
				Expect(download.Header.Get("Content-Disposition")).To(Equal("attachment; filename=scans-2024-03-01.xlsx"))
			})
		})

		When("the requested filename contains header metacharacters", func() {
			It("should not serve it", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/exports/evil%22name.xlsx")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				Expect(resp.Header.Get("Content-Disposition")).To(BeEmpty())
			})
		})

		When("the artifact does not exist", func() {
			It("should return not found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/exports/missing.xlsx")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleMessages", func() {
		It("should drain queued messages", func() {
			typeOverHTTP("XYZ").Body.Close()
			typeOverHTTP("XYZ").Body.Close()

			resp, err := http.Get(ghttpServer.URL() + "/api/messages")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var msgs []Message
			Expect(json.NewDecoder(resp.Body).Decode(&msgs)).To(Succeed())
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Kind).To(Equal("duplicate"))

			again, err := http.Get(ghttpServer.URL() + "/api/messages")
			Expect(err).NotTo(HaveOccurred())
			defer again.Body.Close()
			var drained []Message
			Expect(json.NewDecoder(again.Body).Decode(&drained)).To(Succeed())
			Expect(drained).To(BeEmpty())
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "operator", Password: "secret"}
			server = NewServerWithMux(service, auth, http.NewServeMux())
			setupServer()
		})

		When("credentials are missing", func() {
			It("should return unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/scans")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("credentials are valid", func() {
			It("should serve the request", func() {
				req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/scans", nil)
				Expect(err).NotTo(HaveOccurred())
				creds := base64.StdEncoding.EncodeToString([]byte("operator:secret"))
				req.Header.Set("Authorization", "Basic "+creds)

				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})
	})
})
