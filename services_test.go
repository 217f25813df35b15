package verda_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	oaierrors "github.com/go-openapi/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verda-cloud/verda-go"
)

func TestBalance_Get(t *testing.T) {
	// Arrange
	api := newFakeAPI(t)
	api.handle("GET /balance", func(w http.ResponseWriter, r *http.Request) {
		mustEncode(w, map[string]interface{}{"amount": 42.5, "currency": "usd"})
	})
	client := newTestClient(t, api)

	// Act
	balance, err := client.Balance.Get(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 42.5, balance.Amount)
	assert.Equal(t, "usd", balance.Currency)
}

func TestLocations_List(t *testing.T) {
	// Arrange
	api := newFakeAPI(t)
	api.handle("GET /locations", func(w http.ResponseWriter, r *http.Request) {
		mustEncode(w, []map[string]string{
			{"code": verda.LocationFIN1, "name": "Finland 1", "country_code": "FI"},
			{"code": verda.LocationICE1, "name": "Iceland 1", "country_code": "IS"},
		})
	})
	client := newTestClient(t, api)

	// Act
	locations, err := client.Locations.List(context.Background())

	// Assert
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, verda.Location{Code: "FIN-01", Name: "Finland 1", CountryCode: "FI"}, locations[0])
	assert.Equal(t, "ICE-01", locations[1].Code)
}

// TestSSHKeys tests the SSH key operations.
func TestSSHKeys(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("GET /sshkeys", func(w http.ResponseWriter, r *http.Request) {
			mustEncode(w, []map[string]string{{"id": "k1", "name": "laptop", "key": "ssh-ed25519 AAA"}})
		})
		client := newTestClient(t, api)

		// Act
		keys, err := client.SSHKeys.List(context.Background())

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []verda.SSHKey{{ID: "k1", Name: "laptop", PublicKey: "ssh-ed25519 AAA"}}, keys)
	})

	t.Run("get unwraps single element list", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("GET /sshkeys/{id}", func(w http.ResponseWriter, r *http.Request) {
			mustEncode(w, []map[string]string{{"id": r.PathValue("id"), "name": "laptop", "key": "ssh-rsa B"}})
		})
		client := newTestClient(t, api)

		// Act
		key, err := client.SSHKeys.Get(context.Background(), "k7")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "k7", key.ID)
		assert.Equal(t, "ssh-rsa B", key.PublicKey)
	})

	t.Run("create returns id", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("POST /sshkeys", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			mustDecode(r, &body)
			assert.Equal(t, "laptop", body["name"])
			assert.Equal(t, "ssh-ed25519 AAA", body["key"])
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("new-key-id\n"))
		})
		client := newTestClient(t, api)

		// Act
		key, err := client.SSHKeys.Create(context.Background(), "laptop", "ssh-ed25519 AAA")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "new-key-id", key.ID)
		assert.Equal(t, "laptop", key.Name)
	})

	t.Run("create requires key", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		client := newTestClient(t, api)

		// Act
		_, err := client.SSHKeys.Create(context.Background(), "laptop", "")

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key")
	})

	t.Run("delete many", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("DELETE /sshkeys", func(w http.ResponseWriter, r *http.Request) {
			var body map[string][]string
			mustDecode(r, &body)
			assert.Equal(t, []string{"a", "b"}, body["keys"])
			w.WriteHeader(http.StatusOK)
		})
		api.handle("DELETE /sshkeys/{id}", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "c", r.PathValue("id"))
			w.WriteHeader(http.StatusOK)
		})
		client := newTestClient(t, api)

		// Act & Assert
		require.NoError(t, client.SSHKeys.DeleteMany(context.Background(), []string{"a", "b"}))
		require.NoError(t, client.SSHKeys.Delete(context.Background(), "c"))
	})
}

// TestInstances tests the instance operations.
func TestInstances(t *testing.T) {
	t.Run("list with status filter", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("GET /instances", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, verda.InstanceStatusRunning, r.URL.Query().Get("status"))
			mustEncode(w, []map[string]interface{}{
				{"id": "i1", "instance_type": "1V100.6V", "status": "running", "is_spot": true},
			})
		})
		client := newTestClient(t, api)

		// Act
		instances, err := client.Instances.List(context.Background(), verda.InstanceStatusRunning)

		// Assert
		require.NoError(t, err)
		require.Len(t, instances, 1)
		assert.Equal(t, "i1", instances[0].ID)
		assert.True(t, instances[0].IsSpot)
	})

	t.Run("create posts then fetches", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("POST /instances", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			mustDecode(r, &body)
			assert.Equal(t, "1V100.6V", body["instance_type"])
			assert.Equal(t, verda.DefaultLocation, body["location"])
			assert.Equal(t, []interface{}{"k1"}, body["ssh_key_ids"])
			_, _ = w.Write([]byte("inst-1"))
		})
		api.handle("GET /instances/{id}", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "inst-1", r.PathValue("id"))
			mustEncode(w, map[string]interface{}{
				"id":            "inst-1",
				"instance_type": "1V100.6V",
				"hostname":      "gpu-box",
				"status":        verda.InstanceStatusProvisioning,
				"location":      "FIN-01",
				"created_at":    "2024-05-01T12:00:00.000Z",
				"ssh_key_ids":   []string{"k1"},
				"gpu":           map[string]interface{}{"description": "1x V100", "number_of_gpus": 1},
			})
		})
		client := newTestClient(t, api)

		// Act
		inst, err := client.Instances.Create(context.Background(), &verda.CreateInstanceRequest{
			InstanceType: "1V100.6V",
			Image:        "ubuntu-24.04-cuda-12.4",
			Hostname:     "gpu-box",
			Description:  "test",
			SSHKeyIDs:    []string{"k1"},
		})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "inst-1", inst.ID)
		assert.Equal(t, verda.InstanceStatusProvisioning, inst.Status)
		assert.Equal(t, 1, inst.GPU.NumberOfGPUs)
		assert.Equal(t, 2024, time.Time(inst.CreatedAt).Year())
	})

	t.Run("create validates", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		client := newTestClient(t, api)

		// Act
		_, err := client.Instances.Create(context.Background(), &verda.CreateInstanceRequest{Image: "img"})

		// Assert
		var validation *oaierrors.Validation
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "instance_type", validation.Name)
	})

	t.Run("action", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("POST /instances/action", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			mustDecode(r, &body)
			assert.Equal(t, verda.InstanceActionShutdown, body["action"])
			assert.Equal(t, []interface{}{"i1", "i2"}, body["id"])
			w.WriteHeader(http.StatusAccepted)
		})
		client := newTestClient(t, api)

		// Act & Assert
		require.NoError(t, client.Instances.Action(context.Background(), verda.InstanceActionShutdown, "i1", "i2"))
		assert.Error(t, client.Instances.Action(context.Background(), "explode", "i1"))
		assert.Error(t, client.Instances.Action(context.Background(), verda.InstanceActionBoot))
	})

	t.Run("availability", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("GET /instances/availability/{type}", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "8H100.80S.176V", r.PathValue("type"))
			assert.Equal(t, "true", r.URL.Query().Get("is_spot"))
			mustEncode(w, true)
		})
		client := newTestClient(t, api)

		// Act
		available, err := client.Instances.IsAvailable(context.Background(), "8H100.80S.176V", true)

		// Assert
		require.NoError(t, err)
		assert.True(t, available)
	})

	t.Run("not found", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("GET /instances/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"not_found","message":"Instance not found"}`))
		})
		client := newTestClient(t, api)

		// Act
		_, err := client.Instances.Get(context.Background(), "missing")

		// Assert
		var apiErr *verda.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.True(t, apiErr.IsNotFound())
	})
}

// TestVolumes tests the volume operations.
func TestVolumes(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("POST /volumes", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			mustDecode(r, &body)
			assert.Equal(t, verda.VolumeTypeNVMe, body["type"])
			assert.Equal(t, "data", body["name"])
			assert.EqualValues(t, 100, body["size"])
			assert.Equal(t, verda.DefaultLocation, body["location_code"])
			_, _ = w.Write([]byte(`"vol-1"`))
		})
		api.handle("GET /volumes/{id}", func(w http.ResponseWriter, r *http.Request) {
			mustEncode(w, map[string]interface{}{
				"id": r.PathValue("id"), "name": "data", "size": 100, "type": "NVMe", "status": "ordered",
			})
		})
		client := newTestClient(t, api)

		// Act
		vol, err := client.Volumes.Create(context.Background(), &verda.CreateVolumeRequest{
			Type: verda.VolumeTypeNVMe,
			Name: "data",
			Size: 100,
		})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "vol-1", vol.ID)
		assert.Equal(t, 100, vol.Size)
	})

	t.Run("create validates", func(t *testing.T) {
		tests := []struct {
			name  string
			req   verda.CreateVolumeRequest
			field string
		}{
			{name: "bad type", req: verda.CreateVolumeRequest{Type: "SSD", Name: "n", Size: 1}, field: "type"},
			{name: "no name", req: verda.CreateVolumeRequest{Type: verda.VolumeTypeHDD, Size: 1}, field: "name"},
			{name: "zero size", req: verda.CreateVolumeRequest{Type: verda.VolumeTypeHDD, Name: "n"}, field: "size"},
		}

		api := newFakeAPI(t)
		client := newTestClient(t, api)

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := client.Volumes.Create(context.Background(), &tt.req)

				var validation *oaierrors.Validation
				require.ErrorAs(t, err, &validation)
				assert.Equal(t, tt.field, validation.Name)
			})
		}
	})

	t.Run("list and action", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("GET /volumes", func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.URL.RawQuery)
			mustEncode(w, []map[string]interface{}{{"id": "v1"}, {"id": "v2"}})
		})
		api.handle("PUT /volumes", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			mustDecode(r, &body)
			assert.Equal(t, verda.VolumeActionAttach, body["action"])
			assert.Equal(t, []interface{}{"v1"}, body["id"])
			assert.Equal(t, "inst-1", body["instance_id"])
			assert.NotContains(t, body, "size")
			w.WriteHeader(http.StatusAccepted)
		})
		client := newTestClient(t, api)

		// Act
		volumes, err := client.Volumes.List(context.Background(), "")
		require.NoError(t, err)
		err = client.Volumes.Action(context.Background(), &verda.VolumeActionRequest{
			IDs:        []string{volumes[0].ID},
			Action:     verda.VolumeActionAttach,
			InstanceID: "inst-1",
		})

		// Assert
		require.NoError(t, err)
		assert.Len(t, volumes, 2)
	})

	t.Run("delete", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("DELETE /volumes/{id}", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]bool
			mustDecode(r, &body)
			assert.Equal(t, "v1", r.PathValue("id"))
			assert.True(t, body["is_permanent"])
			w.WriteHeader(http.StatusAccepted)
		})
		client := newTestClient(t, api)

		// Act & Assert
		require.NoError(t, client.Volumes.Delete(context.Background(), "v1", true))
	})
}

func TestImages_List(t *testing.T) {
	// Arrange
	api := newFakeAPI(t)
	api.handle("GET /images", func(w http.ResponseWriter, r *http.Request) {
		mustEncode(w, []map[string]interface{}{{
			"id":         "img-1",
			"name":       "Ubuntu 22.04 + CUDA 12.0",
			"image_type": "ubuntu-22.04-cuda-12.0",
			"details":    []string{"Ubuntu 22.04", "CUDA 12.0"},
		}})
	})
	client := newTestClient(t, api)

	// Act
	images, err := client.Images.List(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []verda.Image{{
		ID:        "img-1",
		Name:      "Ubuntu 22.04 + CUDA 12.0",
		ImageType: "ubuntu-22.04-cuda-12.0",
		Details:   []string{"Ubuntu 22.04", "CUDA 12.0"},
	}}, images)
}

func TestInstanceTypes_List(t *testing.T) {
	// Arrange
	api := newFakeAPI(t)
	api.handle("GET /instance-types", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": "t1", "instance_type": "1V100.6V", "price_per_hour": "0.89", "description": "Tesla V100",
			 "cpu": {"description": "6 CPU", "number_of_cores": 6},
			 "gpu": {"description": "1x V100", "number_of_gpus": 1},
			 "memory": {"description": "23GB RAM", "size_in_gigabytes": 23},
			 "gpu_memory": {"description": "16GB VRAM", "size_in_gigabytes": 16},
			 "storage": {"description": "dynamic"}},
			{"id": "t2", "instance_type": "CPU.4V", "price_per_hour": 0.05, "description": "CPU node",
			 "cpu": {"number_of_cores": 4}, "gpu": {}, "memory": {}, "gpu_memory": {}, "storage": {}}
		]`))
	})
	client := newTestClient(t, api)

	// Act
	types, err := client.InstanceTypes.List(context.Background())

	// Assert
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "1V100.6V", types[0].InstanceType)
	assert.InDelta(t, 0.89, float64(types[0].PricePerHour), 1e-9)
	assert.Equal(t, 6, types[0].CPU.NumberOfCores)
	assert.Equal(t, 1, types[0].GPU.NumberOfGPUs)
	assert.Equal(t, 23, types[0].Memory.SizeInGigabytes)
	assert.Equal(t, 16, types[0].GPUMemory.SizeInGigabytes)
	assert.Equal(t, "dynamic", types[0].Storage.Description)
	assert.Equal(t, "1V100.6V (Tesla V100) $0.89/h", types[0].String())
	assert.InDelta(t, 0.05, float64(types[1].PricePerHour), 1e-9)
}

func TestPrice_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    verda.Price
		wantErr bool
	}{
		{name: "number", input: `1.5`, want: 1.5},
		{name: "numeric string", input: `"2.25"`, want: 2.25},
		{name: "null", input: `null`, want: 0},
		{name: "text", input: `"cheap"`, wantErr: true},
		{name: "object", input: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p verda.Price

			err := p.UnmarshalJSON([]byte(tt.input))

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestVolumeTypes_List(t *testing.T) {
	// Arrange
	api := newFakeAPI(t)
	api.handle("GET /volume-types", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"type": "NVMe", "price": {"price_per_month_per_gb": 0.2, "currency": "usd"}},
			{"type": "HDD", "price": {"price_per_month_per_gb": "0.05"}}
		]`))
	})
	client := newTestClient(t, api)

	// Act
	types, err := client.VolumeTypes.List(context.Background())

	// Assert
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, verda.VolumeTypeNVMe, types[0].Type)
	assert.InDelta(t, 0.2, float64(types[0].Price.PricePerMonthPerGB), 1e-9)
	assert.Equal(t, verda.VolumeTypeHDD, types[1].Type)
	assert.InDelta(t, 0.05, float64(types[1].Price.PricePerMonthPerGB), 1e-9)
}

// TestStartupScripts tests the startup script operations.
func TestStartupScripts(t *testing.T) {
	t.Run("list and get", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("GET /scripts", func(w http.ResponseWriter, r *http.Request) {
			mustEncode(w, []map[string]string{
				{"id": "s1", "name": "setup", "script": "#!/bin/bash\necho hi"},
				{"id": "s2", "name": "other", "script": "true"},
			})
		})
		api.handle("GET /scripts/{id}", func(w http.ResponseWriter, r *http.Request) {
			mustEncode(w, []map[string]string{{"id": r.PathValue("id"), "name": "setup", "script": "true"}})
		})
		client := newTestClient(t, api)

		// Act
		scripts, err := client.StartupScripts.List(context.Background())
		require.NoError(t, err)
		script, getErr := client.StartupScripts.Get(context.Background(), "s1")

		// Assert
		require.Len(t, scripts, 2)
		assert.Equal(t, verda.StartupScript{ID: "s1", Name: "setup", Script: "#!/bin/bash\necho hi"}, scripts[0])
		require.NoError(t, getErr)
		assert.Equal(t, "s1", script.ID)
	})

	t.Run("get empty list", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("GET /scripts/{id}", func(w http.ResponseWriter, r *http.Request) {
			mustEncode(w, []map[string]string{})
		})
		client := newTestClient(t, api)

		// Act
		_, err := client.StartupScripts.Get(context.Background(), "missing")

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing")
	})

	t.Run("create", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		api.handle("POST /scripts", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			mustDecode(r, &body)
			assert.Equal(t, map[string]string{"name": "setup", "script": "true"}, body)
			_, _ = w.Write([]byte("s-new"))
		})
		client := newTestClient(t, api)

		// Act
		script, err := client.StartupScripts.Create(context.Background(), "setup", "true")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, &verda.StartupScript{ID: "s-new", Name: "setup", Script: "true"}, script)
	})

	t.Run("create validation", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		client := newTestClient(t, api)

		// Act
		_, err := client.StartupScripts.Create(context.Background(), "setup", "")

		// Assert
		var validation *oaierrors.Validation
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "script", validation.Name)
	})

	t.Run("delete many and delete", func(t *testing.T) {
		// Arrange
		api := newFakeAPI(t)
		var (
			mu      sync.Mutex
			deleted []string
		)
		api.handle("DELETE /scripts", func(w http.ResponseWriter, r *http.Request) {
			var body map[string][]string
			mustDecode(r, &body)
			mu.Lock()
			deleted = append(deleted, body["scripts"]...)
			mu.Unlock()
		})
		api.handle("DELETE /scripts/{id}", func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			deleted = append(deleted, r.PathValue("id"))
			mu.Unlock()
		})
		client := newTestClient(t, api)

		// Act
		require.NoError(t, client.StartupScripts.DeleteMany(context.Background(), []string{"s1", "s2"}))
		require.NoError(t, client.StartupScripts.Delete(context.Background(), "s3"))

		// Assert
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"s1", "s2", "s3"}, deleted)
	})
}
