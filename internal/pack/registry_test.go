package pack_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go-autoagent/internal/pack"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stub(name string, categories ...string) pack.Pack {
	return pack.Func{
		Desc: pack.Descriptor{Name: name, Description: name + " pack", Categories: categories},
		Fn: func(context.Context, pack.Invocation) (pack.Output, error) {
			return pack.Text("%s ran", name), nil
		},
	}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	t.Parallel()

	r, err := pack.NewRegistry(stub("os_info", "System"))
	require.NoError(t, err)

	p, err := r.Resolve("os_info")
	require.NoError(t, err)
	assert.Equal(t, "os_info", p.Descriptor().Name)

	_, err = r.Resolve("frobnicate")
	assert.ErrorIs(t, err, pack.ErrUnknownPack)
	assert.ErrorContains(t, err, `"frobnicate"`)
}

func TestRegistry_DuplicateName(t *testing.T) {
	t.Parallel()

	r, err := pack.NewRegistry(stub("read_file"))
	require.NoError(t, err)

	err = r.Register(stub("read_file"))
	assert.ErrorIs(t, err, pack.ErrDuplicatePack)

	_, err = pack.NewRegistry(stub("a"), stub("a"))
	assert.ErrorIs(t, err, pack.ErrDuplicatePack)
}

func TestRegistry_EmptyName(t *testing.T) {
	t.Parallel()

	r, _ := pack.NewRegistry()
	assert.ErrorIs(t, r.Register(stub("")), pack.ErrPackNameEmpty)
}

func TestRegistry_ListFiltersDisabledAndCategories(t *testing.T) {
	t.Parallel()

	hidden := pack.Func{Desc: pack.Descriptor{Name: "execute_python_code", Categories: []string{"Programming"}, Disabled: true}}
	r, err := pack.NewRegistry(
		stub("google_search", "Web", "Information"),
		stub("write_file", "Files"),
		stub("get_website_text_content", "Web"),
		hidden,
	)
	require.NoError(t, err)

	names := func(descs []pack.Descriptor) []string {
		out := make([]string, 0, len(descs))
		for _, d := range descs {
			out = append(out, d.Name)
		}
		return out
	}

	assert.Equal(t, []string{"get_website_text_content", "google_search", "write_file"}, names(r.List()))
	assert.Equal(t, []string{"get_website_text_content", "google_search"}, names(r.List("web")))
	assert.Empty(t, r.List("Programming"))

	// disabled packs still resolve so their historical steps stay meaningful
	_, err = r.Resolve("execute_python_code")
	require.NoError(t, err)
	_, err = r.ResolveEnabled("execute_python_code")
	assert.ErrorIs(t, err, pack.ErrPackDisabled)

	require.NoError(t, r.SetDisabled("execute_python_code", false))
	assert.Equal(t, []string{"execute_python_code"}, names(r.List("Programming")))
	assert.ErrorIs(t, r.SetDisabled("nope", true), pack.ErrUnknownPack)
}

func TestRegistry_Reset(t *testing.T) {
	t.Parallel()

	r, _ := pack.NewRegistry(stub("a"), stub("b"))
	r.Reset()
	assert.Empty(t, r.List())
	assert.False(t, r.Has("a"))
	require.NoError(t, r.Register(stub("a")))
}

func TestRegistry_ConcurrentRegisterAndRead(t *testing.T) {
	t.Parallel()

	r, _ := pack.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Register(stub(fmt.Sprintf("pack_%02d", i))))
		}(i)
		go func() {
			defer wg.Done()
			for _, d := range r.List() {
				_, err := r.Resolve(d.Name)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, r.List(), 50)
}
